package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Tyrowin/gopresence/internal/auth"
	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/profile"
)

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "WebSocket server is running")
}

// WebSocketHandler upgrades GET /ws?userID=<id> and hands the connection to
// the hub.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userID")
	if userID == "" {
		http.Error(w, "userID query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(uuid.NewString(), userID, conn, s.hub, r.RemoteAddr, s.cfg)
	if !s.hub.Register(client) {
		client.closeConnection()
	}
}

// SendMessageHandler broadcasts {"message": ...} as a legacy chat message.
func (s *Server) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageSize)).Decode(&req); err != nil {
		s.log.Debug("Invalid send-message body", "error", err)
	}
	if events.IsBlank(req.Message) {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "Message not found in request"})
		return
	}

	delivered := s.dispatcher.BroadcastChat(bytes.TrimSpace(req.Message))
	s.log.Info("Broadcast chat message", "delivered", delivered)
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Message sent to clients"})
}

// OnlineUsersHandler lists the caller's friends with their presence.
func (s *Server) OnlineUsersHandler(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	if _, err := s.verifier.Verify(token); err != nil {
		s.log.Debug("Rejected presence query token", "error", err)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	if s.friends == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Friends lookup not configured"})
		return
	}

	friends, err := s.friends.Friends(r.Context(), token)
	if errors.Is(err, profile.ErrUnauthorized) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	if err != nil {
		s.log.Error("Friends lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}

	online, err := s.presence.OnlineUsers(r.Context())
	if err != nil {
		s.log.Error("Online users lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}
	onlineSet := lo.SliceToMap(online, func(id string) (string, struct{}) { return id, struct{}{} })

	statuses := make([]friendStatus, 0, len(friends))
	for _, f := range friends {
		_, isOnline := onlineSet[f.ID]
		status := friendStatus{UserID: f.ID, Online: isOnline}
		if !isOnline {
			status.LastActive = f.LastActive
			if seen, ok := s.presence.LastSeen(f.ID); ok && (status.LastActive == nil || seen.After(*status.LastActive)) {
				status.LastActive = &seen
			}
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].UserID < statuses[j].UserID })

	writeJSON(w, http.StatusOK, onlineUsersResponse{Friends: statuses})
}

// IsActiveHandler reports whether ?userID= is online on any replica.
func (s *Server) IsActiveHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userID is required"})
		return
	}
	active, err := s.presence.IsActive(r.Context(), userID)
	if err != nil {
		s.log.Error("Presence lookup failed", "user", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}
	writeJSON(w, http.StatusOK, isActiveResponse{UserID: userID, Active: active})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
