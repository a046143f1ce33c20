// Package media implements the media blob-store application protocol: a
// fixed catalog of named binary blobs served by link.
package media

import (
	"log/slog"

	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/engine"
	"github.com/kelsemo/leafcore/message"
)

// Server is a media blob-store protocol server.
type Server struct {
	blobs map[message.Link][]byte
	log   *slog.Logger
}

// Config configures a Server. Blobs is the catalog this server serves;
// populating it is a bootstrap concern external to this package.
type Config struct {
	Blobs  map[message.Link][]byte
	Logger *slog.Logger
}

// New creates a media server over the given blob catalog.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	blobs := cfg.Blobs
	if blobs == nil {
		blobs = make(map[message.Link][]byte)
	}
	return &Server{blobs: blobs, log: logger}
}

// OnMessage implements engine.Protocol.
func (s *Server) OnMessage(ctx *engine.SendContext, peer core.NodeId, msg message.Message, session core.Session) {
	switch m := msg.(type) {
	case message.ReqServerType:
		ctx.SendMessage(peer, message.RespServerType{ServerType: message.ServerType{Kind: message.ServerKindMedia}}, &session)

	case message.ReqMedia:
		data, ok := s.blobs[m.Link]
		if !ok {
			ctx.SendMessage(peer, message.ErrNotFound{}, &session)
			return
		}
		ctx.SendMessage(peer, message.RespMedia{Data: data}, &session)

	default:
		s.log.Warn("unsupported media request", "peer", peer, "kind", message.KindOf(msg))
		ctx.SendMessage(peer, message.ErrUnsupportedRequestType{}, &session)
	}
}
