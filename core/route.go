package core

// Route is an explicit source route: an ordered list of hop ids plus an
// index pointing at the "current hop" — the next id the holder of this
// Route should forward to (or, for a route stored in the routing table,
// the first directly-reachable neighbor toward the destination).
//
// For a Route stored in the routing table, Hops[0] is the leaf itself and
// HopIndex is 1, pointing past it at the first downstream neighbor (see
// NewDirectRoute and the reverse-path and flood routes built from
// Reversed/AdvanceHop). Routes attached to inbound packets, by
// contrast, include every hop the packet actually traversed (source
// through destination) and HopIndex points at wherever the packet
// currently is.
type Route struct {
	Hops     []NodeId
	HopIndex int
}

// NewRoute builds a Route over the given hops with the index at the start.
func NewRoute(hops ...NodeId) Route {
	return Route{Hops: append([]NodeId(nil), hops...), HopIndex: 0}
}

// NewDirectRoute builds the route installed by AddSender: self followed by
// the freshly connected neighbor, with the index already positioned at the
// neighbor so CurrentHop() resolves without any discovery step.
func NewDirectRoute(self, neighbor NodeId) Route {
	return Route{Hops: []NodeId{self, neighbor}, HopIndex: 1}
}

// IsEmpty reports whether the route carries no hops at all.
func (r Route) IsEmpty() bool {
	return len(r.Hops) == 0
}

// Source returns the first hop (the route's origin), if any.
func (r Route) Source() (NodeId, bool) {
	if len(r.Hops) == 0 {
		return 0, false
	}
	return r.Hops[0], true
}

// Destination returns the last hop (the route's terminus), if any.
func (r Route) Destination() (NodeId, bool) {
	if len(r.Hops) == 0 {
		return 0, false
	}
	return r.Hops[len(r.Hops)-1], true
}

// CurrentHop returns the hop at HopIndex, if the index is in range.
func (r Route) CurrentHop() (NodeId, bool) {
	if r.HopIndex < 0 || r.HopIndex >= len(r.Hops) {
		return 0, false
	}
	return r.Hops[r.HopIndex], true
}

// AdvanceHop moves the current-hop pointer one step forward.
func (r Route) AdvanceHop() Route {
	r.HopIndex++
	return r
}

// Reversed returns the return route: hops in reverse order, index reset to
// the start (pointing at what was the destination). Callers that want the
// "next hop after me" semantics call AdvanceHop() once more, as the
// reverse-path-learning step in spec.md §4.2 does.
func (r Route) Reversed() Route {
	n := len(r.Hops)
	rev := make([]NodeId, n)
	for i, h := range r.Hops {
		rev[n-1-i] = h
	}
	return Route{Hops: rev, HopIndex: 0}
}
