package engine

import "github.com/kelsemo/leafcore/core"

// RoutingTable holds, per known peer, the current outbound source route
// (spec.md §3). It is mutated from three places: flood responses, reverse
// path learning on incoming fragments, and explicit neighbor additions —
// all of which run on the leaf's single cooperative goroutine, so no
// locking is needed (spec.md §5).
type RoutingTable struct {
	routes map[core.NodeId]core.Route
}

// NewRoutingTable creates an empty routing table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{routes: make(map[core.NodeId]core.Route)}
}

// Set records (or replaces) the route to a peer.
func (t *RoutingTable) Set(peer core.NodeId, route core.Route) {
	t.routes[peer] = route
}

// Get returns the current route to a peer, if known.
func (t *RoutingTable) Get(peer core.NodeId) (core.Route, bool) {
	r, ok := t.routes[peer]
	return r, ok
}

// Remove discards the route to a peer. Returns true if one was present.
func (t *RoutingTable) Remove(peer core.NodeId) bool {
	if _, ok := t.routes[peer]; !ok {
		return false
	}
	delete(t.routes, peer)
	return true
}

// AddDirectNeighbor installs the direct route [self, neighbor] for a
// freshly connected neighbor, per the AddSender command (spec.md §4.1):
// every freshly connected neighbor is immediately reachable without
// waiting for discovery.
func (t *RoutingTable) AddDirectNeighbor(self, neighbor core.NodeId) {
	t.Set(neighbor, core.NewDirectRoute(self, neighbor))
}

// Len returns the number of peers with a known route. Exposed for tests
// and diagnostics.
func (t *RoutingTable) Len() int {
	return len(t.routes)
}
