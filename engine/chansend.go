package engine

import (
	"errors"

	"github.com/kelsemo/leafcore/core"
)

// ErrChannelClosed is returned by ChannelSender.Send once its underlying
// channel has been closed.
var ErrChannelClosed = errors.New("engine: channel sender closed")

// ChannelSender is the default, zero-dependency PacketSender: it forwards
// packets over a buffered Go channel. This is what single-process tests
// and simulations use to wire two leaves together without a real network
// transport (see transport/mqtt for one that crosses processes).
type ChannelSender struct {
	ch     chan<- core.Packet
	closed *bool
}

// NewChannelPair creates two directly connected ChannelSenders: packets
// sent on one arrive, in order, on the other's receive channel.
func NewChannelPair(buffer int) (a *ChannelSender, aRecv <-chan core.Packet, b *ChannelSender, bRecv <-chan core.Packet) {
	ab := make(chan core.Packet, buffer)
	ba := make(chan core.Packet, buffer)
	closedA, closedB := false, false
	return &ChannelSender{ch: ab, closed: &closedA}, ba, &ChannelSender{ch: ba, closed: &closedB}, ab
}

// NewChannelSender wraps an existing channel as a PacketSender.
func NewChannelSender(ch chan<- core.Packet) *ChannelSender {
	closed := false
	return &ChannelSender{ch: ch, closed: &closed}
}

// Send writes the packet to the channel. It never blocks forever on a
// closed channel; per spec.md §5 the engine is otherwise allowed to block
// on a full channel (no drop-under-load policy).
func (s *ChannelSender) Send(pkt core.Packet) (err error) {
	if *s.closed {
		return ErrChannelClosed
	}
	defer func() {
		if r := recover(); r != nil {
			*s.closed = true
			err = ErrChannelClosed
		}
	}()
	s.ch <- pkt
	return nil
}
