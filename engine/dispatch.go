package engine

import (
	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/message"
)

// handlePacket dispatches one inbound packet by kind (spec.md §4.1's
// packet branch). Kinds the core does not recognize are logged and
// dropped.
func (l *Leaf) handlePacket(pkt core.Packet) {
	l.metrics.PacketsReceived.WithLabelValues(core.KindName(pkt.Kind)).Inc()
	switch k := pkt.Kind.(type) {
	case core.MsgFragment:
		l.handleFragment(pkt, k.Fragment)
	case core.Ack:
		// no-op; a hook point for liveness/resend timers, not required here.
	case core.Nack:
		l.handleNack(pkt.Session, k)
	case core.FloodRequest:
		l.handleFloodRequest(pkt.Session, k)
	case core.FloodResponse:
		l.log.Debug("flood response received at leaf; leaves do not originate floods", "flood_id", k.FloodID)
	default:
		l.log.Warn("unrecognized packet kind dropped", "kind", k)
	}
}

// handleFragment implements the §4.2 inbound fragment path.
func (l *Leaf) handleFragment(pkt core.Packet, frag core.Fragment) {
	src, ok := pkt.Route.Source()
	if !ok {
		l.log.Warn("dropping fragment with no source hop", "error", core.ErrBadRoutingHeader)
		return
	}

	dst, ok := pkt.Route.Destination()
	if !ok || dst != l.self {
		l.metrics.MisroutedFragments.Inc()
		returnRoute := pkt.Route.Reversed().AdvanceHop()
		nack := core.Nack{
			FragmentIndex: frag.Index,
			NackKind:      core.NackKind{Reason: core.NackUnexpectedRecipient, Recipient: l.self},
		}
		if err := l.side.sendAlongRoute(returnRoute, nack, pkt.Session); err != nil {
			l.log.Warn("failed to send unexpected-recipient nack", "src", src, "error", err)
		}
		return
	}

	returnRoute := pkt.Route.Reversed().AdvanceHop()
	l.routing.Set(src, returnRoute)
	l.metrics.RoutesKnown.Set(float64(l.routing.Len()))

	if err := l.side.sendPacket(src, core.Ack{FragmentIndex: frag.Index}, pkt.Session); err != nil {
		l.log.Warn("failed to ack fragment", "src", src, "index", frag.Index, "error", err)
	}

	complete, done := l.reassembly.Add(pkt.Session, src, frag)
	l.metrics.ReassemblyPending.Set(float64(l.reassembly.PendingCount()))
	if !done {
		return
	}

	msg, err := message.FromFragments(complete)
	if err != nil {
		l.metrics.ParseFailures.Inc()
		l.log.Warn("discarding message: reassembly failed", "src", src, "session", pkt.Session, "error", err)
		return
	}

	if l.protocol == nil {
		l.log.Warn("no protocol configured; dropping reassembled message", "src", src, "session", pkt.Session)
		return
	}
	l.metrics.MessagesDispatched.Inc()
	l.protocol.OnMessage(&SendContext{side: l.side}, src, msg, pkt.Session)
}

// handleFloodRequest implements the §4.3 flood responder.
func (l *Leaf) handleFloodRequest(session core.Session, req core.FloodRequest) {
	trace := make([]core.TraceHop, len(req.PathTrace)+1)
	copy(trace, req.PathTrace)
	trace[len(trace)-1] = core.TraceHop{Node: l.self, Type: core.NodeTypeServer}

	hops := make([]core.NodeId, len(trace))
	for i, hop := range trace {
		hops[len(trace)-1-i] = hop.Node
	}
	if hops[len(hops)-1] != req.Initiator {
		hops = append(hops, req.Initiator)
	}

	returnRoute := core.NewRoute(hops...).AdvanceHop()
	l.routing.Set(req.Initiator, returnRoute)
	l.metrics.RoutesKnown.Set(float64(l.routing.Len()))

	resp := core.FloodResponse{FloodID: req.FloodID, PathTrace: trace}
	if err := l.side.sendAlongRoute(returnRoute, resp, session); err != nil {
		l.log.Warn("failed to send flood response", "initiator", req.Initiator, "flood_id", req.FloodID, "error", err)
	}
}

// handleNack implements the §4.4 NACK handler.
func (l *Leaf) handleNack(session core.Session, nack core.Nack) {
	if nack.NackKind.Reason != core.NackDropped {
		l.log.Warn("nack reports non-retransmittable condition", "reason", nack.NackKind.Reason, "session", session, "index", nack.FragmentIndex)
		return
	}

	pkt, ok := l.history.Lookup(session, nack.FragmentIndex)
	if !ok {
		l.log.Warn("nack for unknown history entry", "session", session, "index", nack.FragmentIndex)
		return
	}

	if err := l.side.retransmit(pkt); err != nil {
		l.log.Warn("retransmission failed", "session", session, "index", nack.FragmentIndex, "error", err)
		return
	}
	l.metrics.Retransmissions.Inc()
}
