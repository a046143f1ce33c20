package message

import (
	"fmt"

	"github.com/kelsemo/leafcore/core"
)

// MaxFragmentPayload is the largest payload slice carried by a single
// Fragment. Messages whose encoded form exceeds this are split across
// multiple fragments, all sharing one TotalFragments count (spec.md §3).
const MaxFragmentPayload = 128

// ToFragments splits an encoded Message into an ordered run of fragments.
// A zero-length encoding (impossible for real variants, but cheap to
// handle) still yields exactly one empty fragment, since every message
// produces at least one fragment to carry.
func ToFragments(m Message) []core.Fragment {
	encoded := Encode(m)
	if len(encoded) == 0 {
		return []core.Fragment{{Index: 0, TotalFragments: 1, Payload: nil}}
	}

	total := uint64((len(encoded) + MaxFragmentPayload - 1) / MaxFragmentPayload)
	fragments := make([]core.Fragment, 0, total)
	for i := uint64(0); i < total; i++ {
		start := int(i) * MaxFragmentPayload
		end := min(start+MaxFragmentPayload, len(encoded))
		payload := make([]byte, end-start)
		copy(payload, encoded[start:end])
		fragments = append(fragments, core.Fragment{
			Index:          i,
			TotalFragments: total,
			Payload:        payload,
		})
	}
	return fragments
}

// FromFragments reassembles a complete fragment group (all sharing one
// TotalFragments, indices 0..TotalFragments-1 each present exactly once)
// back into the Message it encoded. Fragments need not be passed in index
// order — FromFragments sorts by index before concatenating, since
// reassembly does not require ordered arrival (spec.md §4.2).
func FromFragments(fragments []core.Fragment) (Message, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("message: no fragments to reassemble: %w", core.ErrParse)
	}

	total := fragments[0].TotalFragments
	ordered := make([][]byte, total)
	seen := make([]bool, total)
	for _, f := range fragments {
		if f.TotalFragments != total {
			return nil, fmt.Errorf("message: mismatched total fragment count: %w", core.ErrParse)
		}
		if f.Index >= total {
			return nil, fmt.Errorf("message: fragment index %d out of range [0,%d): %w", f.Index, total, core.ErrParse)
		}
		if seen[f.Index] {
			return nil, fmt.Errorf("message: duplicate fragment index %d: %w", f.Index, core.ErrParse)
		}
		seen[f.Index] = true
		ordered[f.Index] = f.Payload
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("message: missing fragment index %d: %w", i, core.ErrParse)
		}
	}

	var encoded []byte
	for _, chunk := range ordered {
		encoded = append(encoded, chunk...)
	}
	return Decode(encoded)
}
