package engine

import (
	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/message"
)

// Protocol is the single capability the engine requires from an
// application protocol: consume a reassembled message (spec.md §4.5).
// It is invoked exactly once per successfully reassembled inbound
// message, synchronously, on the leaf's cooperative goroutine — an
// implementation must not block or suspend.
type Protocol interface {
	OnMessage(ctx *SendContext, peer core.NodeId, msg message.Message, session core.Session)
}

// ProtocolFunc adapts a plain function to Protocol, mirroring the
// function-valued-field option spec.md §9 calls out as an acceptable
// realization of the seam.
type ProtocolFunc func(ctx *SendContext, peer core.NodeId, msg message.Message, session core.Session)

func (f ProtocolFunc) OnMessage(ctx *SendContext, peer core.NodeId, msg message.Message, session core.Session) {
	f(ctx, peer, msg, session)
}
