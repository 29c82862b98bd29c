package server

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gopresence/internal/auth"
	"github.com/Tyrowin/gopresence/internal/dispatch"
)

// Server bundles the WebSocket transport and the HTTP API.
type Server struct {
	cfg        *Config
	hub        *Hub
	dispatcher *dispatch.Dispatcher
	presence   PresenceView
	friends    FriendsLookup
	verifier   *auth.Verifier
	origins    *originPolicy
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

// New creates a Server. friends may be nil when no profile service is
// configured; the online-users endpoint then fails with 500.
func New(cfg *Config, d *dispatch.Dispatcher, presence PresenceView, friends FriendsLookup, log *slog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	s := &Server{
		cfg:        cfg,
		hub:        NewHub(d, log),
		dispatcher: d,
		presence:   presence,
		friends:    friends,
		verifier:   auth.NewVerifier(cfg.JWTSecret),
		origins:    newOriginPolicy(cfg.AllowedOrigins, log),
		log:        log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
