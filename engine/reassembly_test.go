package engine

import (
	"testing"

	"github.com/kelsemo/leafcore/core"
)

func TestReassemblyBufferSingleFragmentCompletesImmediately(t *testing.T) {
	b := NewReassemblyBuffer()
	frag := core.Fragment{Index: 0, TotalFragments: 1, Payload: []byte("hi")}

	got, done := b.Add(1, 7, frag)
	if !done {
		t.Fatalf("expected a single-fragment group to complete immediately")
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(got))
	}
	if b.PendingCount() != 0 {
		t.Fatalf("expected the completed group to be removed, pending=%d", b.PendingCount())
	}
}

func TestReassemblyBufferWaitsForAllFragments(t *testing.T) {
	b := NewReassemblyBuffer()

	_, done := b.Add(1, 7, core.Fragment{Index: 0, TotalFragments: 3})
	if done {
		t.Fatalf("expected incomplete after 1 of 3 fragments")
	}
	if b.PendingCount() != 1 {
		t.Fatalf("expected 1 pending group, got %d", b.PendingCount())
	}

	_, done = b.Add(1, 7, core.Fragment{Index: 1, TotalFragments: 3})
	if done {
		t.Fatalf("expected incomplete after 2 of 3 fragments")
	}

	got, done := b.Add(1, 7, core.Fragment{Index: 2, TotalFragments: 3})
	if !done {
		t.Fatalf("expected completion on the 3rd fragment")
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(got))
	}
	if b.PendingCount() != 0 {
		t.Fatalf("expected the group to be removed atomically with completion")
	}
}

func TestReassemblyBufferKeepsSessionsAndPeersSeparate(t *testing.T) {
	b := NewReassemblyBuffer()
	b.Add(1, 7, core.Fragment{Index: 0, TotalFragments: 2})
	b.Add(1, 8, core.Fragment{Index: 0, TotalFragments: 2})
	b.Add(2, 7, core.Fragment{Index: 0, TotalFragments: 2})

	if b.PendingCount() != 3 {
		t.Fatalf("expected 3 independent pending groups, got %d", b.PendingCount())
	}
}
