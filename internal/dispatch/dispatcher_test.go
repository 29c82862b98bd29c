package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/fanout"
	"github.com/Tyrowin/gopresence/internal/registry"
	"github.com/Tyrowin/gopresence/internal/rooms"
)

type testConn struct {
	id, userID string
	mu         sync.Mutex
	frames     []events.Frame
}

func (c *testConn) ID() string     { return c.id }
func (c *testConn) UserID() string { return c.userID }

func (c *testConn) Send(payload []byte) bool {
	f, err := events.DecodeFrame(payload)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return true
}

func (c *testConn) named(name string) []events.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Frame
	for _, f := range c.frames {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func (c *testConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// registryPresence registers connections and counts lifecycle calls.
type registryPresence struct {
	reg         *registry.Registry
	mu          sync.Mutex
	connects    map[string]int
	disconnects map[string]int
	onConnect   func()
}

func (p *registryPresence) OnConnect(userID, connID string) bool {
	p.mu.Lock()
	p.connects[connID]++
	hook := p.onConnect
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return p.reg.Register(userID, connID)
}

func (p *registryPresence) OnDisconnect(userID, connID string) bool {
	p.mu.Lock()
	p.disconnects[connID]++
	p.mu.Unlock()
	return p.reg.Unregister(userID, connID)
}

func (p *registryPresence) disconnectsOf(connID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects[connID]
}

type fixture struct {
	d        *Dispatcher
	engine   *fanout.Engine
	presence *registryPresence
}

func newFixture() *fixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reg := registry.New()
	engine := fanout.NewEngine(reg, rooms.New(), log)
	p := &registryPresence{reg: reg, connects: map[string]int{}, disconnects: map[string]int{}}
	return &fixture{d: New(engine, p, log), engine: engine, presence: p}
}

func (f *fixture) connect(t *testing.T, id, userID string) *testConn {
	t.Helper()
	c := &testConn{id: id, userID: userID}
	require.NoError(t, f.d.Connect(c))
	return c
}

func (f *fixture) send(t *testing.T, connID, kind string, data any) error {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return f.d.Message(connID, kind, raw)
}

// TestRoomScenario tests message relay and typing in room 7.
// It verifies that messages reach the sender too and typing does not.
func TestRoomScenario(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	x := f.connect(t, "X", "1")
	y := f.connect(t, "Y", "2")

	// Given X and Y in room 7
	req.NoError(f.send(t, "X", events.JoinRoomKind, map[string]any{"roomID": 7}))
	req.NoError(f.send(t, "Y", events.JoinRoomKind, map[string]any{"roomID": "7"}))

	// When X sends a message
	req.NoError(f.send(t, "X", events.SendMessageKind, map[string]any{"roomID": 7, "content": "hi", "senderID": "X"}))

	// Then both receive it
	req.Len(x.named(events.ReceiveMessageName), 1)
	req.Len(y.named(events.ReceiveMessageName), 1)
	var msg events.ReceiveMessage
	req.NoError(json.Unmarshal(x.named(events.ReceiveMessageName)[0].Data, &msg))
	req.Equal(events.ID("7"), msg.RoomID)
	req.Equal("hi", msg.Content)
	req.False(msg.Timestamp.IsZero())

	// When Y types
	req.NoError(f.send(t, "Y", events.TypingKind, map[string]any{"roomID": 7, "typewriterID": "Y"}))

	// Then only X is told
	req.Len(x.named(events.TypingName), 1)
	req.Empty(y.named(events.TypingName))
}

// TestSeenAndReactionExcludeSender tests the remaining room events.
func TestSeenAndReactionExcludeSender(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	x := f.connect(t, "X", "1")
	y := f.connect(t, "Y", "2")
	req.NoError(f.send(t, "X", events.JoinRoomKind, map[string]any{"roomID": 7}))
	req.NoError(f.send(t, "Y", events.JoinRoomKind, map[string]any{"roomID": 7}))

	req.NoError(f.send(t, "X", events.SeenMessageKind, map[string]any{
		"roomID": 7, "viewerID": 1, "name": "Ann", "avatar": "a.png", "senderID": 2,
	}))
	req.NoError(f.send(t, "Y", events.ReactionMessageKind, map[string]any{
		"responderID": 2, "messageID": 99, "emoji": "+1", "roomID": 7,
	}))

	req.Empty(x.named(events.SeenMessageName))
	req.Len(y.named(events.SeenMessageName), 1)
	req.Len(x.named(events.ReceiveReactionName), 1)
	req.Empty(y.named(events.ReceiveReactionName))
}

// TestMalformedEventsAreDropped tests conjunctive validation.
// It verifies that a partially specified event is never partially processed.
func TestMalformedEventsAreDropped(t *testing.T) {
	tests := []struct {
		name string
		kind string
		data map[string]any
	}{
		{name: "message without sender", kind: events.SendMessageKind, data: map[string]any{"roomID": 7, "content": "hi"}},
		{name: "message without content", kind: events.SendMessageKind, data: map[string]any{"roomID": 7, "senderID": 1}},
		{name: "message without room", kind: events.SendMessageKind, data: map[string]any{"content": "hi", "senderID": 1}},
		{name: "typing without typewriter", kind: events.TypingKind, data: map[string]any{"roomID": 7}},
		{name: "seen without avatar", kind: events.SeenMessageKind, data: map[string]any{"roomID": 7, "viewerID": 1, "name": "Ann", "senderID": 2}},
		{name: "reaction without emoji", kind: events.ReactionMessageKind, data: map[string]any{"responderID": 1, "messageID": 2, "roomID": 7}},
		{name: "join with object room", kind: events.JoinRoomKind, data: map[string]any{"roomID": map[string]any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture()
			x := f.connect(t, "X", "1")
			y := f.connect(t, "Y", "2")
			req.NoError(f.send(t, "X", events.JoinRoomKind, map[string]any{"roomID": 7}))
			req.NoError(f.send(t, "Y", events.JoinRoomKind, map[string]any{"roomID": 7}))

			err := f.send(t, "X", tt.kind, tt.data)

			req.ErrorIs(err, ErrMalformedEvent)
			req.Zero(x.count())
			req.Zero(y.count())
		})
	}
}

// TestUnknownAndUndecodableFrames tests frame level rejections.
func TestUnknownAndUndecodableFrames(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	f.connect(t, "X", "1")

	req.ErrorIs(f.d.HandleFrame("X", []byte(`{"event":"dance","data":{}}`)), ErrUnknownEvent)
	req.ErrorIs(f.d.HandleFrame("X", []byte(`garbage`)), ErrMalformedEvent)
	req.ErrorIs(f.d.HandleFrame("X", []byte(`{"event":"join_room"}`)), ErrMalformedEvent)
	req.ErrorIs(f.d.HandleFrame("ghost", []byte(`{"event":"join_room","data":{"roomID":1}}`)), ErrUnknownConnection)
}

// TestFriendRequests tests private notifications to every device of a user.
func TestFriendRequests(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	requester := f.connect(t, "R", "7")
	tab1 := f.connect(t, "T1", "42")
	tab2 := f.connect(t, "T2", "42")

	// When 7 sends a friend request to 42
	req.NoError(f.send(t, "R", events.SendFriendRequestKind, map[string]any{"senderID": 7, "receiverID": 42}))
	// Then every device of 42 is notified
	req.Len(tab1.named(events.ReceiveFriendRequestName), 1)
	req.Len(tab2.named(events.ReceiveFriendRequestName), 1)
	req.Empty(requester.named(events.ReceiveFriendRequestName))

	// When 42 accepts it
	req.NoError(f.send(t, "T1", events.ChangeFriendRequestKind, map[string]any{
		"senderID": 7, "receiverID": 42, "status": "accepted", "roomID": 12,
	}))
	// Then the requester is notified
	changed := requester.named(events.FriendRequestChangedName)
	req.Len(changed, 1)
	req.JSONEq(`{"senderID":"7","receiverID":"42","status":"accepted","roomID":"12"}`, string(changed[0].Data))
	req.Empty(tab1.named(events.FriendRequestChangedName))
}

// TestFriendRequestToOfflineUser tests that nothing is queued for absent users.
func TestFriendRequestToOfflineUser(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	requester := f.connect(t, "R", "7")

	req.NoError(f.send(t, "R", events.SendFriendRequestKind, map[string]any{"senderID": 7, "receiverID": 42}))
	req.Zero(requester.count())

	// A later connection of 42 receives nothing either
	late := f.connect(t, "L", "42")
	req.Zero(late.count())
}

// TestLegacyChatMessage tests the global chat relay.
func TestLegacyChatMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	x := f.connect(t, "X", "1")
	y := f.connect(t, "Y", "2")

	req.NoError(f.d.Message("X", events.ChatMessageKind, json.RawMessage(`"hello"`)))
	for _, blank := range []string{`null`, `""`, `false`, `0`, ` -0.0 `} {
		req.ErrorIs(f.d.Message("X", events.ChatMessageKind, json.RawMessage(blank)), ErrMalformedEvent, "payload %s", blank)
	}
	req.NoError(f.d.Message("Y", events.ChatMessageKind, json.RawMessage(`true`)))

	req.Len(x.named(events.ChatMessageName), 2)
	req.Len(y.named(events.ChatMessageName), 2)
	req.JSONEq(`"hello"`, string(y.named(events.ChatMessageName)[0].Data))
	req.JSONEq(`true`, string(y.named(events.ChatMessageName)[1].Data))
}

// TestDuplicateDisconnect tests that the Closed path runs exactly once.
func TestDuplicateDisconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	x := f.connect(t, "X", "1")
	y := f.connect(t, "Y", "2")
	req.NoError(f.send(t, "X", events.JoinRoomKind, map[string]any{"roomID": 7}))
	req.NoError(f.send(t, "Y", events.JoinRoomKind, map[string]any{"roomID": 7}))

	var wg sync.WaitGroup
	results := make(chan bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.d.Disconnect("X")
		}()
	}
	wg.Wait()
	close(results)

	trues := 0
	for ok := range results {
		if ok {
			trues++
		}
	}
	req.Equal(1, trues)
	req.Equal(1, f.presence.disconnectsOf("X"))
	req.Equal(Closed, f.d.State("X"))

	// X no longer receives room traffic
	req.NoError(f.send(t, "Y", events.SendMessageKind, map[string]any{"roomID": 7, "content": "hi", "senderID": 2}))
	req.Empty(x.named(events.ReceiveMessageName))
	req.Len(y.named(events.ReceiveMessageName), 1)
}

// TestEventsAfterCloseAreDropped tests the Open-only rule.
func TestEventsAfterCloseAreDropped(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	f.connect(t, "X", "1")
	req.True(f.d.Disconnect("X"))

	err := f.send(t, "X", events.JoinRoomKind, map[string]any{"roomID": 7})
	req.ErrorIs(err, ErrUnknownConnection)
}

// TestConnectValidation tests connection identity checks.
func TestConnectValidation(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	req.ErrorIs(f.d.Connect(&testConn{id: "A"}), ErrMissingIdentity)
	req.NoError(f.d.Connect(&testConn{id: "A", userID: "1"}))
	req.ErrorIs(f.d.Connect(&testConn{id: "A", userID: "2"}), ErrDuplicateConnection)
	req.Equal(Open, f.d.State("A"))
	req.Equal(1, f.presence.connects["A"])
}

// TestDisconnectWhileConnecting tests a disconnect racing the open transition.
// It verifies that cleanup still runs once and the connection never opens.
func TestDisconnectWhileConnecting(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	f.presence.onConnect = func() {
		// Transport reports the close before Connect returns.
		req.Equal(Connecting, f.d.State("A"))
		req.True(f.d.Disconnect("A"))
	}

	req.NoError(f.d.Connect(&testConn{id: "A", userID: "1"}))

	req.Equal(Closed, f.d.State("A"))
	req.Equal(1, f.presence.disconnectsOf("A"))
	req.Zero(f.engine.Connections())
	req.False(f.d.Disconnect("A"))
}

// TestMessageTimestampUsesServerClock tests the relay timestamp.
func TestMessageTimestampUsesServerClock(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.d.now = func() time.Time { return at }
	x := f.connect(t, "X", "1")
	req.NoError(f.send(t, "X", events.JoinRoomKind, map[string]any{"roomID": 7}))

	req.NoError(f.send(t, "X", events.SendMessageKind, map[string]any{"roomID": 7, "content": "hi", "senderID": 1, "messageID": 5}))

	var msg events.ReceiveMessage
	req.NoError(json.Unmarshal(x.named(events.ReceiveMessageName)[0].Data, &msg))
	req.Equal(at, msg.Timestamp)
	req.Equal(events.ID("5"), msg.MessageID)
}
