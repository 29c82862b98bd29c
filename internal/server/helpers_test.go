package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gopresence/internal/dispatch"
	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/fanout"
	"github.com/Tyrowin/gopresence/internal/presence"
	"github.com/Tyrowin/gopresence/internal/registry"
	"github.com/Tyrowin/gopresence/internal/rooms"
	"github.com/Tyrowin/gopresence/internal/store"
)

const testOrigin = "http://localhost:6060"

// testStack is a fully wired server backed by an in-memory store.
type testStack struct {
	server   *Server
	http     *httptest.Server
	presence *presence.Coordinator
	store    store.Store
	wsURL    string
}

func newTestStack(t *testing.T, mutate func(cfg *Config)) *testStack {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	cfg := NewConfig()
	if mutate != nil {
		mutate(cfg)
		cfg.AllowedOrigins = nil
		cfg.sanitize()
	}

	st, err := store.NewBadger(store.BadgerConfig{TombstoneTTL: time.Hour})
	require.NoError(t, err)

	reg := registry.New()
	engine := fanout.NewEngine(reg, rooms.New(), log)
	coord, err := presence.New(presence.Config{}, reg, st, nil, engine, log)
	require.NoError(t, err)
	d := dispatch.New(engine, coord, log)

	s := New(cfg, d, coord, nil, log)
	go s.hub.Run()
	ts := httptest.NewServer(s.SetupRoutes())

	t.Cleanup(func() {
		ts.Close()
		_ = s.hub.Shutdown(5 * time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Close(ctx)
		_ = st.Close()
	})

	return &testStack{
		server:   s,
		http:     ts,
		presence: coord,
		store:    st,
		wsURL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

// connectWebSocket dials the stack as userID with the test origin.
func (ts *testStack) connectWebSocket(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, err := dialWebSocket(ts.wsURL+"?userID="+userID, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// sendEvent writes one {"event","data"} frame.
func sendEvent(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": name, "data": data}))
}

// readEvent returns the next event named name, skipping others.
func readEvent(t *testing.T, conn *websocket.Conn, name string) events.Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", name)
		f, err := events.DecodeFrame(raw)
		require.NoError(t, err)
		if f.Event == name {
			return f
		}
	}
}

// expectNoEvent fails if an event named name arrives within wait.
func expectNoEvent(t *testing.T, conn *websocket.Conn, name string, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected read error: %v", err)
			return
		}
		f, err := events.DecodeFrame(raw)
		require.NoError(t, err)
		require.NotEqual(t, name, f.Event, "unexpected %s event", name)
	}
}
