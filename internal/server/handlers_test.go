package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/gopresence/internal/dispatch"
	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/fanout"
	"github.com/Tyrowin/gopresence/internal/mocks"
	"github.com/Tyrowin/gopresence/internal/profile"
	"github.com/Tyrowin/gopresence/internal/registry"
	"github.com/Tyrowin/gopresence/internal/rooms"
)

// newMockedServer builds a Server whose presence and friends collaborators
// are supplied by the test. No WebSocket client is ever attached.
func newMockedServer(cfg *Config, presence PresenceView, friends FriendsLookup) *Server {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	engine := fanout.NewEngine(registry.New(), rooms.New(), log)
	return New(cfg, dispatch.New(engine, nil, log), presence, friends, log)
}

func signToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// TestHealthHandler tests the health endpoint through the router.
// It verifies the status line for GET and that other methods are rejected.
func TestHealthHandler(t *testing.T) {
	req := require.New(t)
	handler := newMockedServer(NewConfig(), nil, nil).SetupRoutes()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	req.Equal(http.StatusOK, rr.Code)
	req.Equal("WebSocket server is running", rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
	req.Equal(http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", http.NoBody))
	req.Equal(http.StatusNotFound, rr.Code)
}

// TestWebSocketHandlerRequiresUserID verifies that an upgrade without a
// userID query parameter is refused before the handshake.
func TestWebSocketHandlerRequiresUserID(t *testing.T) {
	req := require.New(t)
	s := newMockedServer(NewConfig(), nil, nil)

	rr := httptest.NewRecorder()
	s.WebSocketHandler(rr, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))

	req.Equal(http.StatusBadRequest, rr.Code)
	req.Equal(0, s.Hub().ClientCount())
}

// TestIsActiveHandler tests the is-active endpoint against a mocked
// presence view.
func TestIsActiveHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		setup      func(p *mocks.MockPresenceView)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing userID",
			query:      "",
			setup:      func(*mocks.MockPresenceView) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "store failure",
			query: "?userID=42",
			setup: func(p *mocks.MockPresenceView) {
				p.EXPECT().IsActive(gomock.Any(), "42").Return(false, errors.New("store down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:  "active user",
			query: "?userID=42",
			setup: func(p *mocks.MockPresenceView) {
				p.EXPECT().IsActive(gomock.Any(), "42").Return(true, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"userID":"42","active":true}`,
		},
		{
			name:  "inactive user",
			query: "?userID=43",
			setup: func(p *mocks.MockPresenceView) {
				p.EXPECT().IsActive(gomock.Any(), "43").Return(false, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"userID":"43","active":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			presence := mocks.NewMockPresenceView(ctrl)
			tt.setup(presence)

			rr := httptest.NewRecorder()
			newMockedServer(NewConfig(), presence, nil).IsActiveHandler(rr, httptest.NewRequest(http.MethodGet, "/api/is-active"+tt.query, http.NoBody))

			req.Equal(tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				req.JSONEq(tt.wantBody, rr.Body.String())
			}
		})
	}
}

// TestOnlineUsersHandlerRejections tests every path of the online-users
// endpoint that ends without a friend list.
func TestOnlineUsersHandlerRejections(t *testing.T) {
	valid := signToken(t, "secret", time.Now().Add(time.Hour))
	expired := signToken(t, "secret", time.Now().Add(-time.Hour))

	tests := []struct {
		name       string
		header     string
		secret     string
		noFriends  bool
		setup      func(p *mocks.MockPresenceView, f *mocks.MockFriendsLookup)
		wantStatus int
	}{
		{
			name:       "missing authorization",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			header:     "Basic " + valid,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "opaque token with a secret configured",
			header:     "Bearer 12|sanctumOpaqueToken",
			secret:     "secret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			header:     "Bearer " + expired,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bad signature",
			header:     "Bearer " + valid,
			secret:     "another-secret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "friends lookup not configured",
			header:     "Bearer " + valid,
			noFriends:  true,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:   "profile service rejects token",
			header: "Bearer " + valid,
			setup: func(_ *mocks.MockPresenceView, f *mocks.MockFriendsLookup) {
				f.EXPECT().Friends(gomock.Any(), valid).Return(nil, fmt.Errorf("friends: %w", profile.ErrUnauthorized))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "profile service failure",
			header: "Bearer " + valid,
			setup: func(_ *mocks.MockPresenceView, f *mocks.MockFriendsLookup) {
				f.EXPECT().Friends(gomock.Any(), valid).Return(nil, errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:   "presence store failure",
			header: "Bearer " + valid,
			setup: func(p *mocks.MockPresenceView, f *mocks.MockFriendsLookup) {
				f.EXPECT().Friends(gomock.Any(), valid).Return([]profile.Friend{{ID: "2"}}, nil)
				p.EXPECT().OnlineUsers(gomock.Any()).Return(nil, errors.New("store down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			presence := mocks.NewMockPresenceView(ctrl)
			friends := mocks.NewMockFriendsLookup(ctrl)
			if tt.setup != nil {
				tt.setup(presence, friends)
			}

			cfg := NewConfig()
			cfg.JWTSecret = tt.secret
			var lookup FriendsLookup = friends
			if tt.noFriends {
				lookup = nil
			}

			r := httptest.NewRequest(http.MethodGet, "/api/online-users", http.NoBody)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			newMockedServer(cfg, presence, lookup).OnlineUsersHandler(rr, r)

			req.Equal(tt.wantStatus, rr.Code)
			var body errorResponse
			req.NoError(json.Unmarshal(rr.Body.Bytes(), &body))
			req.NotEmpty(body.Error)
		})
	}
}

// TestOnlineUsersHandler tests a successful friend listing. It verifies the
// sort order, the online flags and that offline friends carry the most
// recent known activity.
func TestOnlineUsersHandler(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	presence := mocks.NewMockPresenceView(ctrl)
	friends := mocks.NewMockFriendsLookup(ctrl)

	older := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	token := signToken(t, "secret", time.Now().Add(time.Hour))

	// Given friend 3 online, friend 1 seen upstream more recently than locally
	// and friend 2 seen locally more recently than upstream
	friends.EXPECT().Friends(gomock.Any(), token).Return([]profile.Friend{
		{ID: "3"},
		{ID: "1", LastActive: &newer},
		{ID: "2", LastActive: &older},
		{ID: "4"},
	}, nil)
	presence.EXPECT().OnlineUsers(gomock.Any()).Return([]string{"3", "99"}, nil)
	presence.EXPECT().LastSeen("1").Return(older, true)
	presence.EXPECT().LastSeen("2").Return(newer, true)
	presence.EXPECT().LastSeen("4").Return(time.Time{}, false)

	// When the caller lists its friends
	r := httptest.NewRequest(http.MethodGet, "/api/online-users", http.NoBody)
	r.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	newMockedServer(NewConfig(), presence, friends).OnlineUsersHandler(rr, r)

	// Then every friend is listed once, sorted by ID
	req.Equal(http.StatusOK, rr.Code)
	req.Equal("application/json", rr.Header().Get("Content-Type"))

	var body onlineUsersResponse
	req.NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	req.Len(body.Friends, 4)

	req.Equal("1", body.Friends[0].UserID)
	req.False(body.Friends[0].Online)
	req.NotNil(body.Friends[0].LastActive)
	req.True(newer.Equal(*body.Friends[0].LastActive))

	req.Equal("2", body.Friends[1].UserID)
	req.False(body.Friends[1].Online)
	req.NotNil(body.Friends[1].LastActive)
	req.True(newer.Equal(*body.Friends[1].LastActive))

	req.Equal("3", body.Friends[2].UserID)
	req.True(body.Friends[2].Online)
	req.Nil(body.Friends[2].LastActive)

	req.Equal("4", body.Friends[3].UserID)
	req.False(body.Friends[3].Online)
	req.Nil(body.Friends[3].LastActive)
}

// TestOnlineUsersHandlerOpaqueToken verifies that without a JWT secret a
// non-JWT bearer token is forwarded to the profile service, which decides.
func TestOnlineUsersHandlerOpaqueToken(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	presence := mocks.NewMockPresenceView(ctrl)
	friends := mocks.NewMockFriendsLookup(ctrl)
	const token = "12|sanctumOpaqueToken"

	// Given a profile service that accepts the opaque token
	friends.EXPECT().Friends(gomock.Any(), token).Return([]profile.Friend{{ID: "5"}}, nil)
	presence.EXPECT().OnlineUsers(gomock.Any()).Return([]string{"5"}, nil)

	// When the caller lists its friends
	r := httptest.NewRequest(http.MethodGet, "/api/online-users", http.NoBody)
	r.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	newMockedServer(NewConfig(), presence, friends).OnlineUsersHandler(rr, r)

	// Then the friend list comes back
	req.Equal(http.StatusOK, rr.Code)
	req.JSONEq(`{"friends":[{"userID":"5","online":true,"last_active":null}]}`, rr.Body.String())
}

// TestSendMessageHandler tests the legacy broadcast endpoint end to end.
// It verifies that a body without a message is rejected without any
// broadcast and that a valid body reaches every connected client.
func TestSendMessageHandler(t *testing.T) {
	req := require.New(t)
	ts := newTestStack(t, nil)

	conn := ts.connectWebSocket(t, "42")
	readEvent(t, conn, events.UserOnlineName)

	post := func(body string) (int, apiResponse) {
		resp, err := http.Post(ts.http.URL+"/send-message", "application/json", strings.NewReader(body))
		req.NoError(err)
		defer func() { _ = resp.Body.Close() }()
		var out apiResponse
		req.NoError(json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	for _, body := range []string{
		`{}`, `{"message":null}`, `{"message":""}`, `{"message":false}`,
		`{"message":0}`, `{"message":0.0}`, `not json`, ``,
	} {
		status, out := post(body)
		req.Equal(http.StatusBadRequest, status, "body %q", body)
		req.Equal(apiResponse{Success: false, Message: "Message not found in request"}, out)
	}
	expectNoEvent(t, conn, events.ChatMessageName, 200*time.Millisecond)

	status, out := post(`{"message":"0"}`)
	req.Equal(http.StatusOK, status)
	req.True(out.Success)
	f := readEvent(t, conn, events.ChatMessageName)
	req.JSONEq(`"0"`, string(f.Data))

	status, out = post(`{"message":{"text":"hello"}}`)
	req.Equal(http.StatusOK, status)
	req.Equal(apiResponse{Success: true, Message: "Message sent to clients"}, out)

	f = readEvent(t, conn, events.ChatMessageName)
	req.JSONEq(`{"text":"hello"}`, string(f.Data))
}

// TestHandlersHonorCanceledContext verifies that presence queries pass the
// request context through to the presence view.
func TestHandlersHonorCanceledContext(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	presence := mocks.NewMockPresenceView(ctrl)
	presence.EXPECT().IsActive(gomock.Any(), "42").DoAndReturn(func(ctx context.Context, _ string) (bool, error) {
		return false, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodGet, "/api/is-active?userID=42", http.NoBody).WithContext(ctx)
	rr := httptest.NewRecorder()
	newMockedServer(NewConfig(), presence, nil).IsActiveHandler(rr, r)

	req.Equal(http.StatusInternalServerError, rr.Code)
}
