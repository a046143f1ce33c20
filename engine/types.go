package engine

import (
	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/message"
)

// PacketSender is a neighbor's send endpoint. The wire format and
// transport underneath are opaque to the engine (spec.md §6) — package
// transport/mqtt and the in-process ChannelSender in this package are two
// concrete bindings.
type PacketSender interface {
	Send(core.Packet) error
}

// LeafCommand is a command sent from the controller to a leaf.
type LeafCommand interface {
	leafCommand()
}

// AddSender installs (or overwrites) the send endpoint for a neighbor and
// makes it immediately reachable via a direct route (spec.md §4.1).
type AddSender struct {
	NodeID   core.NodeId
	Endpoint PacketSender
}

func (AddSender) leafCommand() {}

// RemoveSender removes a neighbor's send endpoint and its direct route.
// Routes transiting that neighbor are left alone (spec.md §4.1, §9).
type RemoveSender struct {
	NodeID core.NodeId
}

func (RemoveSender) leafCommand() {}

// Kill clears the running flag; the leaf terminates after the in-flight
// step completes.
type Kill struct{}

func (Kill) leafCommand() {}

// LeafEvent is an event emitted from a leaf to the controller.
type LeafEvent interface {
	leafEvent()
}

// PacketSend is emitted on every outbound packet attempt, successful or
// not.
type PacketSend struct {
	Packet core.Packet
}

func (PacketSend) leafEvent() {}

// ControllerShortcut is emitted when an in-plane send fails for a
// shortcut-eligible packet kind (spec.md §4.6).
type ControllerShortcut struct {
	Packet core.Packet
}

func (ControllerShortcut) leafEvent() {}

// MessageStartSend is emitted before a message's fragments are sent.
type MessageStartSend struct {
	From    core.NodeId
	Session core.Session
	Dest    core.NodeId
	Message message.Message
}

func (MessageStartSend) leafEvent() {}

// MessageFullySent is emitted after all of a message's fragments have been
// handed to the send path.
type MessageFullySent struct {
	From    core.NodeId
	Session core.Session
}

func (MessageFullySent) leafEvent() {}
