// Package text implements the text/file-catalog application protocol: a
// fixed catalog of named documents, each optionally referencing related
// side files (e.g. embedded images), served by link.
package text

import (
	"hash/fnv"
	"log/slog"

	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/engine"
	"github.com/kelsemo/leafcore/message"
)

// identityUUID is hashed once per server instance to give ServerType a
// stable identification constant for client-side caching (spec.md §9.4 —
// optional metadata, not required for correctness). fnv-1a stands in for
// the original hash construction; both are non-cryptographic identity
// hashes over a fixed label, so the substitution changes the constant's
// value but not its role.
func identityUUID(label string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(label))
	return h.Sum64()
}

// Server is a text/file-catalog protocol server.
type Server struct {
	uuid  uint64
	files map[message.Link]message.FileWithData
	log   *slog.Logger
}

// Config configures a Server. Files is the catalog this server serves;
// populating it is a bootstrap concern external to this package.
type Config struct {
	Files  map[message.Link]message.FileWithData
	Logger *slog.Logger
}

// New creates a text server over the given file catalog.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	files := cfg.Files
	if files == nil {
		files = make(map[message.Link]message.FileWithData)
	}
	return &Server{
		uuid:  identityUUID("leafcore-text-server"),
		files: files,
		log:   logger,
	}
}

// OnMessage implements engine.Protocol.
func (s *Server) OnMessage(ctx *engine.SendContext, peer core.NodeId, msg message.Message, session core.Session) {
	switch m := msg.(type) {
	case message.ReqServerType:
		ctx.SendMessage(peer, message.RespServerType{
			ServerType: message.ServerType{Kind: message.ServerKindText, UUID: s.uuid},
		}, &session)

	case message.ReqFilesList:
		links := make([]message.Link, 0, len(s.files))
		for link := range s.files {
			links = append(links, link)
		}
		ctx.SendMessage(peer, message.RespFilesList{Links: links}, &session)

	case message.ReqFile:
		file, ok := s.files[m.Link]
		if !ok {
			ctx.SendMessage(peer, message.ErrNotFound{}, &session)
			return
		}
		ctx.SendMessage(peer, message.RespFile{File: file}, &session)

	default:
		s.log.Warn("unsupported text request", "peer", peer, "kind", message.KindOf(msg))
		ctx.SendMessage(peer, message.ErrUnsupportedRequestType{}, &session)
	}
}
