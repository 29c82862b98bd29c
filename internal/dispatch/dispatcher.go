// Package dispatch is the entry point of the transport layer into the
// presence and room engines. It owns the per-connection state machine
//
//	Connecting -> Open -> Closed
//
// and turns validated inbound events into fan-out operations. Only Open
// connections may join, leave or emit events, and the Closed path (leave
// every room, detach, presence disconnect) runs once per connection however
// many times the transport reports the disconnect.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/fanout"
)

var (
	ErrMissingIdentity     = errors.New("dispatch: connection has no user id")
	ErrDuplicateConnection = errors.New("dispatch: connection id already in use")
	ErrUnknownConnection   = errors.New("dispatch: unknown connection")
	ErrNotOpen             = errors.New("dispatch: connection is not open")
	ErrUnknownEvent        = errors.New("dispatch: unknown event")
	ErrMalformedEvent      = errors.New("dispatch: malformed event")
)

// State is the lifecycle state of a connection.
type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Presence receives connection lifecycle signals.
type Presence interface {
	OnConnect(userID, connID string) bool
	OnDisconnect(userID, connID string) bool
}

type session struct {
	conn  fanout.Conn
	state atomic.Int32
}

func (s *session) load() State { return State(s.state.Load()) }

type handler func(s *session, payload json.RawMessage) error

// Dispatcher is the event dispatch façade.
type Dispatcher struct {
	sessions sync.Map // connID -> *session
	engine   *fanout.Engine
	presence Presence
	validate *validator.Validate
	handlers map[string]handler
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Dispatcher.
func New(engine *fanout.Engine, presence Presence, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		presence: presence,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		now:      time.Now,
	}
	d.handlers = map[string]handler{
		events.JoinRoomKind:            d.joinRoom,
		events.LeaveRoomKind:           d.leaveRoom,
		events.SendMessageKind:         d.sendMessage,
		events.TypingKind:              d.typing,
		events.SeenMessageKind:         d.seenMessage,
		events.ReactionMessageKind:     d.reaction,
		events.SendFriendRequestKind:   d.sendFriendRequest,
		events.ChangeFriendRequestKind: d.changeFriendRequest,
		events.ChatMessageKind:         d.chatMessage,
	}
	return d
}

// Connect runs the Connecting -> Open transition for conn.
func (d *Dispatcher) Connect(conn fanout.Conn) error {
	if conn.UserID() == "" {
		return ErrMissingIdentity
	}
	s := &session{conn: conn}
	s.state.Store(int32(Connecting))
	if _, loaded := d.sessions.LoadOrStore(conn.ID(), s); loaded {
		return ErrDuplicateConnection
	}

	d.engine.Attach(conn)
	d.presence.OnConnect(conn.UserID(), conn.ID())

	if !s.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		// Disconnected while connecting; the disconnect left cleanup to us.
		d.teardown(s)
		return nil
	}
	d.log.Info("Connection open", "conn", conn.ID(), "user", conn.UserID())
	return nil
}

// Disconnect closes connID. It reports false for unknown or already closed
// connections.
func (d *Dispatcher) Disconnect(connID string) bool {
	v, ok := d.sessions.LoadAndDelete(connID)
	if !ok {
		d.log.Debug("Ignoring disconnect of unknown connection", "conn", connID)
		return false
	}
	s := v.(*session)
	if State(s.state.Swap(int32(Closed))) == Open {
		d.teardown(s)
	}
	return true
}

func (d *Dispatcher) teardown(s *session) {
	id := s.conn.ID()
	rooms := d.engine.LeaveAll(id)
	d.engine.Detach(id)
	d.presence.OnDisconnect(s.conn.UserID(), id)
	d.log.Info("Connection closed", "conn", id, "user", s.conn.UserID(), "rooms", len(rooms))
}

// State returns the state of connID. Forgotten connections report Closed.
func (d *Dispatcher) State(connID string) State {
	v, ok := d.sessions.Load(connID)
	if !ok {
		return Closed
	}
	return v.(*session).load()
}

// HandleFrame decodes a raw {"event","data"} frame and dispatches it.
func (d *Dispatcher) HandleFrame(connID string, raw []byte) error {
	frame, err := events.DecodeFrame(raw)
	if err != nil {
		d.log.Debug("Dropping undecodable frame", "conn", connID, "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return d.Message(connID, frame.Event, frame.Data)
}

// Message dispatches one inbound event. Errors are already logged; the
// protocol never reports them back to the sender.
func (d *Dispatcher) Message(connID, kind string, payload json.RawMessage) error {
	v, ok := d.sessions.Load(connID)
	if !ok {
		d.log.Debug("Dropping event of unknown connection", "conn", connID, "event", kind)
		return ErrUnknownConnection
	}
	s := v.(*session)
	if state := s.load(); state != Open {
		d.log.Debug("Dropping event of connection not open", "conn", connID, "event", kind, "state", state)
		return ErrNotOpen
	}

	h, ok := d.handlers[kind]
	if !ok {
		d.log.Debug("Dropping unknown event", "conn", connID, "event", kind)
		return fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
	if err := h(s, payload); err != nil {
		d.log.Warn("Dropping malformed event", "conn", connID, "event", kind, "error", err)
		return err
	}
	return nil
}

// BroadcastChat relays a legacy chat message to every connection.
func (d *Dispatcher) BroadcastChat(message json.RawMessage) int {
	return d.engine.BroadcastGlobal(events.ChatMessage{Message: message})
}

func decode[T any](v *validator.Validate, payload json.RawMessage) (T, error) {
	var req T
	if len(payload) == 0 {
		return req, fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := v.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return req, nil
}
