package core

import (
	"errors"
	"fmt"
)

// Sentinel error kinds from spec.md §7. Wrapped with context via %w so
// callers can errors.Is against the sentinel while logs still carry the
// offending node id.
var (
	// ErrUnknownNodeID means the resolved next hop has no neighbor
	// endpoint (routing points at a neighbor the leaf no longer has).
	ErrUnknownNodeID = errors.New("unknown node id")

	// ErrUnknownNodeInfo means no route is stored for the target peer.
	ErrUnknownNodeInfo = errors.New("unknown node info")

	// ErrSend means the neighbor endpoint refused the packet.
	ErrSend = errors.New("send error")

	// ErrParse means fragments decoded into bytes that are not a valid
	// application message.
	ErrParse = errors.New("parse error")

	// ErrBadRoutingHeader means a fragment arrived with no source hop.
	ErrBadRoutingHeader = errors.New("bad routing header")
)

// UnknownNodeIDError wraps ErrUnknownNodeID with the offending id.
type UnknownNodeIDError struct{ NodeID NodeId }

func (e *UnknownNodeIDError) Error() string {
	return fmt.Sprintf("unknown node id %s", e.NodeID)
}

func (e *UnknownNodeIDError) Unwrap() error { return ErrUnknownNodeID }

// UnknownNodeInfoError wraps ErrUnknownNodeInfo with the offending id.
type UnknownNodeInfoError struct{ NodeID NodeId }

func (e *UnknownNodeInfoError) Error() string {
	return fmt.Sprintf("unknown node info %s", e.NodeID)
}

func (e *UnknownNodeInfoError) Unwrap() error { return ErrUnknownNodeInfo }
