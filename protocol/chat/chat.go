// Package chat implements the chat application protocol: a registry of
// connected clients and a relay for direct messages between them.
package chat

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/engine"
	"github.com/kelsemo/leafcore/message"
)

// Server is a chat protocol server. Registration broadcasts the full
// client roster to every registered client, not just the one that just
// registered — this mirrors how the protocol actually behaves upstream,
// where clients use the broadcast to keep their own roster view current
// without polling.
type Server struct {
	mu      sync.RWMutex
	clients map[core.NodeId]struct{}
	log     *slog.Logger
}

// Config configures a Server.
type Config struct {
	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
}

// New creates a chat server with an empty client roster.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		clients: make(map[core.NodeId]struct{}),
		log:     logger,
	}
}

// Clients returns the currently registered client ids, sorted.
func (s *Server) Clients() []core.NodeId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedClientsLocked()
}

func (s *Server) sortedClientsLocked() []core.NodeId {
	ids := make([]core.NodeId, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OnMessage implements engine.Protocol.
func (s *Server) OnMessage(ctx *engine.SendContext, peer core.NodeId, msg message.Message, session core.Session) {
	switch m := msg.(type) {
	case message.ReqServerType:
		ctx.SendMessage(peer, message.RespServerType{ServerType: message.ServerType{Kind: message.ServerKindChat}}, &session)

	case message.ReqChatRegistration:
		s.mu.Lock()
		s.clients[peer] = struct{}{}
		roster := s.sortedClientsLocked()
		s.mu.Unlock()

		for _, client := range roster {
			ctx.SendMessage(client, message.RespClientList{Clients: roster}, nil)
		}

	case message.ReqChatClients:
		ctx.SendMessage(peer, message.RespClientList{Clients: s.Clients()}, &session)

	case message.ReqChatSend:
		s.mu.RLock()
		_, known := s.clients[m.To]
		s.mu.RUnlock()
		if !known {
			ctx.SendMessage(peer, message.ErrNotExistentClient{}, &session)
			return
		}
		ctx.SendMessage(m.To, message.RespChatFrom{From: peer, ChatMsg: m.ChatMsg}, nil)

	default:
		s.log.Warn("unsupported chat request", "peer", peer, "kind", message.KindOf(msg))
		ctx.SendMessage(peer, message.ErrUnsupportedRequestType{}, &session)
	}
}
