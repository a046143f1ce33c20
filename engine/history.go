package engine

import "github.com/kelsemo/leafcore/core"

// HistoryKey identifies one previously transmitted fragment packet.
type HistoryKey struct {
	Session       core.Session
	FragmentIndex uint64
}

// SendHistory records the last transmitted packet for each
// (session, fragment-index) pair, so a Nack{Dropped} can be answered with
// an exact retransmission (spec.md §4.4). Entries are never evicted for
// the life of the leaf — see DESIGN.md's open question on history growth.
type SendHistory struct {
	entries map[HistoryKey]core.Packet
}

// NewSendHistory creates an empty send history.
func NewSendHistory() *SendHistory {
	return &SendHistory{entries: make(map[HistoryKey]core.Packet)}
}

// Record stores the packet sent for (session, fragmentIndex).
func (h *SendHistory) Record(session core.Session, fragmentIndex uint64, pkt core.Packet) {
	h.entries[HistoryKey{Session: session, FragmentIndex: fragmentIndex}] = pkt
}

// Lookup returns the packet previously sent for (session, fragmentIndex).
func (h *SendHistory) Lookup(session core.Session, fragmentIndex uint64) (core.Packet, bool) {
	pkt, ok := h.entries[HistoryKey{Session: session, FragmentIndex: fragmentIndex}]
	return pkt, ok
}

// Len returns the number of recorded entries. Exposed for tests and for an
// embedder that wants to monitor unbounded growth (see DESIGN.md).
func (h *SendHistory) Len() int {
	return len(h.entries)
}
