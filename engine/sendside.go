package engine

import (
	"errors"
	"log/slog"

	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/message"
	"github.com/kelsemo/leafcore/metrics"
)

// shortcutEligible is the set of packet kinds allowed to fall back to the
// controller shortcut when an in-plane send fails (spec.md §4.6). Data
// payloads (MsgFragment) are never eligible — they must traverse the
// honest data plane so retransmission semantics hold.
func shortcutEligible(k core.Kind) bool {
	switch k.(type) {
	case core.Ack, core.Nack, core.FloodResponse:
		return true
	default:
		return false
	}
}

// sendSide bundles every piece of state the send path (and the protocol
// seam) needs write access to: the neighbor table, routing table, session
// counter, and send history, plus the controller event channel. Per
// spec.md §9 this is exposed as a single struct passed by exclusive
// reference rather than as finer-grained aliases — SendContext below is
// that struct's public face for protocols; the engine uses the same
// underlying logic directly for Ack/Nack/FloodResponse.
type sendSide struct {
	self      core.NodeId
	neighbors map[core.NodeId]PacketSender
	routing   *RoutingTable
	sessions  *core.SessionAllocator
	history   *SendHistory
	events    chan<- LeafEvent
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// resolve looks up the route and neighbor endpoint for peer, per spec.md
// §4.6 step 1.
func (s *sendSide) resolve(peer core.NodeId) (core.Route, PacketSender, error) {
	route, ok := s.routing.Get(peer)
	if !ok {
		return core.Route{}, nil, &core.UnknownNodeInfoError{NodeID: peer}
	}
	hop, ok := route.CurrentHop()
	if !ok {
		return core.Route{}, nil, &core.UnknownNodeInfoError{NodeID: peer}
	}
	sender, ok := s.neighbors[hop]
	if !ok {
		return core.Route{}, nil, &core.UnknownNodeIDError{NodeID: hop}
	}
	return route, sender, nil
}

// emitEvent emits a controller event, logging (not failing) if the
// channel is full/closed — every controller notification in this file is
// best-effort.
func (s *sendSide) emitEvent(ev LeafEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("dropped controller event: channel closed", "event", ev)
		}
	}()
	select {
	case s.events <- ev:
	default:
		s.log.Warn("dropped controller event: channel full", "event", ev)
	}
}

// sendPacket sends a single non-fragment packet (Ack, Nack, FloodResponse,
// ...) to peer, resolving the route via the routing table. It is never
// recorded in send history.
func (s *sendSide) sendPacket(peer core.NodeId, kind core.Kind, session core.Session) error {
	route, _, err := s.resolve(peer)
	if err != nil {
		return err
	}
	return s.sendAlongRoute(route, kind, session)
}

// sendAlongRoute sends a single non-fragment packet along an explicit
// route rather than one looked up from the routing table — used by the
// §4.2 step-2 UnexpectedRecipient reply, which must answer a misrouted
// fragment before any route to its source has been learned or stored.
//
// If the neighbor send fails and the packet kind is shortcut-eligible, a
// ControllerShortcut event is emitted as a fallback; if the controller
// accepts it, the original failure is masked (spec.md §4.6).
func (s *sendSide) sendAlongRoute(route core.Route, kind core.Kind, session core.Session) error {
	hop, ok := route.CurrentHop()
	if !ok {
		dest, _ := route.Destination()
		return &core.UnknownNodeInfoError{NodeID: dest}
	}
	sender, ok := s.neighbors[hop]
	if !ok {
		return &core.UnknownNodeIDError{NodeID: hop}
	}

	pkt := core.Packet{Route: route, Session: session, Kind: kind}
	s.emitEvent(PacketSend{Packet: pkt})
	s.metrics.PacketsSent.WithLabelValues(core.KindName(kind)).Inc()

	sendErr := sender.Send(pkt)
	if sendErr == nil {
		return nil
	}
	sendErr = errors.Join(core.ErrSend, sendErr)
	s.metrics.SendErrors.WithLabelValues(core.KindName(kind)).Inc()

	if !shortcutEligible(kind) {
		return sendErr
	}

	select {
	case s.events <- ControllerShortcut{Packet: pkt}:
		s.metrics.ControllerShortcuts.Inc()
		return nil // shortcut accepted; mask the original failure
	default:
		s.log.Warn("controller shortcut channel full; reporting original send error", "hop", hop)
		return sendErr
	}
}

// retransmit resends a previously sent packet verbatim to its route's
// current hop — the §4.4 NACK{Dropped} path. It does not allocate a new
// session, does not touch send history (the entry already exists), and
// is not shortcut-eligible: a dropped data fragment must be retried on
// the same data plane, not shunted to the controller.
func (s *sendSide) retransmit(pkt core.Packet) error {
	hop, ok := pkt.Route.CurrentHop()
	if !ok {
		dest, _ := pkt.Route.Destination()
		return &core.UnknownNodeInfoError{NodeID: dest}
	}
	sender, ok := s.neighbors[hop]
	if !ok {
		return &core.UnknownNodeIDError{NodeID: hop}
	}
	s.emitEvent(PacketSend{Packet: pkt})
	s.metrics.PacketsSent.WithLabelValues(core.KindName(pkt.Kind)).Inc()
	if err := sender.Send(pkt); err != nil {
		s.metrics.SendErrors.WithLabelValues(core.KindName(pkt.Kind)).Inc()
		return errors.Join(core.ErrSend, err)
	}
	return nil
}

// sendMessageRaw implements spec.md §4.6's send_message: resolve the
// route, allocate or reuse a session, fragment the message, record each
// MsgFragment in send history, and send each fragment in order. Per-
// fragment send errors are collected, not fatal — the loop never aborts
// early.
func (s *sendSide) sendMessageRaw(peer core.NodeId, msg message.Message, fixedSession *core.Session) (core.Session, []error) {
	route, sender, err := s.resolve(peer)
	if err != nil {
		return 0, []error{err}
	}

	var session core.Session
	if fixedSession != nil {
		session = *fixedSession
	} else {
		session = s.sessions.Next()
	}

	s.emitEvent(MessageStartSend{From: s.self, Session: session, Dest: peer, Message: msg})
	s.metrics.MessagesSent.Inc()

	fragments := message.ToFragments(msg)
	var sendErrs []error
	for _, frag := range fragments {
		pkt := core.Packet{
			Route:   route,
			Session: session,
			Kind:    core.MsgFragment{Fragment: frag},
		}
		s.history.Record(session, frag.Index, pkt)
		s.emitEvent(PacketSend{Packet: pkt})
		s.metrics.PacketsSent.WithLabelValues(core.KindName(pkt.Kind)).Inc()

		if err := sender.Send(pkt); err != nil {
			sendErrs = append(sendErrs, errors.Join(core.ErrSend, err))
			s.metrics.SendErrors.WithLabelValues(core.KindName(pkt.Kind)).Inc()
		}
	}
	s.metrics.HistoryEntries.Set(float64(s.history.Len()))

	s.emitEvent(MessageFullySent{From: s.self, Session: session})
	return session, sendErrs
}

// SendContext is the protocol-facing handle onto the send side, passed by
// exclusive reference into Protocol.OnMessage for the duration of one
// dispatch (spec.md §9) — never retained across calls.
type SendContext struct {
	side *sendSide
}

// SendMessage resolves peer's route, fragments msg, records the fragments
// in send history, and sends them. Pass fixedSession non-nil to reply on
// the request's own session id (the response-path convention in spec.md
// §6); pass nil to allocate a fresh outbound session.
//
// Errors from individual fragment sends are logged by the engine and not
// returned here — see spec.md §7: the protocol is not notified of
// delivery failures synchronously, only via subsequent NACKs.
func (c *SendContext) SendMessage(peer core.NodeId, msg message.Message, fixedSession *core.Session) core.Session {
	session, errs := c.side.sendMessageRaw(peer, msg, fixedSession)
	for _, err := range errs {
		c.side.log.Warn("send message: fragment send failed", "peer", peer, "error", err)
	}
	return session
}

// NewTestSendContext exposes a Leaf's internal send side as a SendContext
// outside of a live dispatch, so a protocol package's own tests can drive
// Protocol.OnMessage directly against a real, wired Leaf without running
// the full packet-receive loop.
func NewTestSendContext(l *Leaf) *SendContext {
	return &SendContext{side: l.side}
}

// NextSession allocates and returns a fresh outbound session id without
// sending anything — useful for protocols that need to correlate a
// session before the first fragment goes out (e.g. a relayed chat
// message, spec.md §6's RespChatFrom).
func (c *SendContext) NextSession() core.Session {
	return c.side.sessions.Next()
}
