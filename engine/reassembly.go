package engine

import "github.com/kelsemo/leafcore/core"

// ReassemblyKey identifies one in-progress fragment group.
type ReassemblyKey struct {
	Session core.Session
	Peer    core.NodeId
}

type reassemblyEntry struct {
	fragments []core.Fragment
	total     uint64
}

// ReassemblyBuffer accumulates fragments per (session, peer) until the
// group's declared total is reached, at which point the caller removes it
// and hands the fragments to the message codec (spec.md §4.2 steps 5-6).
// Reassembly does not require ordered arrival: a fragment's Index carries
// enough information on its own.
type ReassemblyBuffer struct {
	pending map[ReassemblyKey]*reassemblyEntry
}

// NewReassemblyBuffer creates an empty reassembly buffer.
func NewReassemblyBuffer() *ReassemblyBuffer {
	return &ReassemblyBuffer{pending: make(map[ReassemblyKey]*reassemblyEntry)}
}

// Add appends a fragment to the group for (session, peer), allocating the
// group's backing slice from the fragment's TotalFragments on first
// insert. It returns the complete, ordered fragment slice and true once
// the group's fragment count reaches TotalFragments; the group is removed
// from the buffer in that same call (spec.md's "removed atomically with
// that invocation").
func (b *ReassemblyBuffer) Add(session core.Session, peer core.NodeId, frag core.Fragment) ([]core.Fragment, bool) {
	key := ReassemblyKey{Session: session, Peer: peer}
	entry, ok := b.pending[key]
	if !ok {
		entry = &reassemblyEntry{
			fragments: make([]core.Fragment, 0, frag.TotalFragments),
			total:     frag.TotalFragments,
		}
		b.pending[key] = entry
	}
	entry.fragments = append(entry.fragments, frag)

	if uint64(len(entry.fragments)) != entry.total {
		return nil, false
	}
	delete(b.pending, key)
	return entry.fragments, true
}

// PendingCount returns the number of in-progress fragment groups.
func (b *ReassemblyBuffer) PendingCount() int {
	return len(b.pending)
}
