package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes returns the application routes wrapped in the CORS policy.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("GET /ws", s.WebSocketHandler)
	mux.HandleFunc("POST /send-message", s.SendMessageHandler)
	mux.HandleFunc("GET /api/online-users", s.OnlineUsersHandler)
	mux.HandleFunc("GET /api/is-active", s.IsActiveHandler)

	return cors.New(cors.Options{
		AllowedOrigins: s.origins.list(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}
