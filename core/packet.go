package core

// Fragment is one piece of a message split for transmission. All fragments
// belonging to one (session, peer) group share the same TotalFragments and
// carry a unique Index within that group (spec.md §3).
type Fragment struct {
	Index          uint64
	TotalFragments uint64
	Payload        []byte
}

// NackReason enumerates why a fragment was NACKed.
type NackReason uint8

const (
	// NackDropped means the fragment was lost in transit; the core
	// retransmits the exact original packet from send history.
	NackDropped NackReason = iota
	// NackUnexpectedRecipient means a fragment arrived at a node that was
	// not its destination; the core emits this itself (spec.md §4.2 step 2)
	// rather than retransmitting.
	NackUnexpectedRecipient
)

func (r NackReason) String() string {
	switch r {
	case NackDropped:
		return "dropped"
	case NackUnexpectedRecipient:
		return "unexpected-recipient"
	default:
		return "unknown"
	}
}

// NackKind carries the reason for a Nack and, for NackUnexpectedRecipient,
// the node that rejected the fragment.
type NackKind struct {
	Reason    NackReason
	Recipient NodeId // meaningful only when Reason == NackUnexpectedRecipient
}

// Kind is the tagged union of packet payload kinds the engine understands.
// Kinds it does not recognize arrive as Unknown and are logged and dropped
// per spec.md §4.1.
type Kind interface {
	kind()
}

// MsgFragment carries one Fragment of an application message.
type MsgFragment struct {
	Fragment Fragment
}

func (MsgFragment) kind() {}

// Ack acknowledges receipt of a single fragment.
type Ack struct {
	FragmentIndex uint64
}

func (Ack) kind() {}

// Nack reports a problem with a single fragment.
type Nack struct {
	FragmentIndex uint64
	NackKind      NackKind
}

func (Nack) kind() {}

// FloodRequest is a discovery probe traversing the network, accumulating a
// path_trace as it goes.
type FloodRequest struct {
	FloodID   uint64
	Initiator NodeId
	PathTrace []TraceHop
}

func (FloodRequest) kind() {}

// FloodResponse is the reply to a FloodRequest, carrying the same path
// trace the request accumulated (plus, per spec.md §4.3, the responder's
// own hop appended before the response was sent).
type FloodResponse struct {
	FloodID   uint64
	PathTrace []TraceHop
}

func (FloodResponse) kind() {}

// Unknown represents any packet kind the core does not recognize. It is
// logged and dropped (spec.md §4.1).
type Unknown struct {
	Label string
}

func (Unknown) kind() {}

// Packet is the unit exchanged between leaves and their neighbors.
type Packet struct {
	Route   Route
	Session Session
	Kind    Kind
}

// KindName returns a short stable name for a packet kind, suitable as a
// log field or metrics label.
func KindName(k Kind) string {
	switch k.(type) {
	case MsgFragment:
		return "msg_fragment"
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	case FloodRequest:
		return "flood_request"
	case FloodResponse:
		return "flood_response"
	default:
		return "unknown"
	}
}

// IsFragment reports whether the packet carries a MsgFragment and, if so,
// returns the fragment's index — used by callers that need an index for a
// reply (e.g. building a Nack{UnexpectedRecipient}) without a full type
// switch.
func (p Packet) IsFragment() (uint64, bool) {
	if f, ok := p.Kind.(MsgFragment); ok {
		return f.Fragment.Index, true
	}
	return 0, false
}
