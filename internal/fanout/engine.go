// Package fanout delivers events to the connections currently attached to
// this process: to the members of a room, to every device of one user, or to
// everyone.
package fanout

import (
	"log/slog"

	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/registry"
	"github.com/Tyrowin/gopresence/internal/rooms"
	"github.com/Tyrowin/gopresence/internal/shardmap"
)

// Conn is a transport connection able to receive encoded frames.
type Conn interface {
	ID() string
	UserID() string
	// Send queues payload without blocking and reports whether it was
	// accepted. A connection that cannot keep up is the transport's concern.
	Send(payload []byte) bool
}

// Engine is the room membership and fan-out engine. Delivery is best-effort
// and at most once per connection.
type Engine struct {
	conns    *shardmap.Map[Conn]
	registry *registry.Registry
	rooms    *rooms.Membership
	log      *slog.Logger
}

// NewEngine creates an Engine resolving user connections through reg.
func NewEngine(reg *registry.Registry, membership *rooms.Membership, log *slog.Logger) *Engine {
	return &Engine{
		conns:    shardmap.NewMap[Conn](),
		registry: reg,
		rooms:    membership,
		log:      log,
	}
}

// Attach makes conn reachable for deliveries.
func (e *Engine) Attach(conn Conn) {
	e.conns.Store(conn.ID(), conn)
}

// Detach removes connID from the delivery table.
func (e *Engine) Detach(connID string) bool {
	return e.conns.Delete(connID)
}

// Connections returns the number of attached connections.
func (e *Engine) Connections() int {
	return e.conns.Len()
}

// Join adds an attached connection to roomID. Unknown connections are ignored.
func (e *Engine) Join(connID, roomID string) bool {
	if _, ok := e.conns.Load(connID); !ok {
		e.log.Debug("Ignoring join for unknown connection", "conn", connID, "room", roomID)
		return false
	}
	return e.rooms.Join(connID, roomID)
}

// Leave removes connID from roomID.
func (e *Engine) Leave(connID, roomID string) bool {
	return e.rooms.Leave(connID, roomID)
}

// LeaveAll removes connID from all of its rooms.
func (e *Engine) LeaveAll(connID string) []string {
	return e.rooms.LeaveAll(connID)
}

// BroadcastToRoom delivers evt to every member of roomID except
// excludeConnID, when non-empty. It returns the number of deliveries.
func (e *Engine) BroadcastToRoom(roomID string, evt events.Event, excludeConnID string) int {
	members := e.rooms.Members(roomID)
	if len(members) == 0 {
		return 0
	}
	payload, ok := e.encode(evt)
	if !ok {
		return 0
	}

	delivered := 0
	for _, connID := range members {
		if excludeConnID != "" && connID == excludeConnID {
			continue
		}
		if e.deliver(connID, payload) {
			delivered++
		}
	}
	e.log.Debug("Room broadcast", "room", roomID, "event", evt.EventName(), "delivered", delivered)
	return delivered
}

// BroadcastGlobal delivers evt to every attached connection.
func (e *Engine) BroadcastGlobal(evt events.Event) int {
	payload, ok := e.encode(evt)
	if !ok {
		return 0
	}

	delivered := 0
	for _, conn := range e.conns.Values() {
		if e.send(conn, payload) {
			delivered++
		}
	}
	e.log.Debug("Global broadcast", "event", evt.EventName(), "delivered", delivered)
	return delivered
}

// SendToUser delivers evt to every connection of userID. A user without
// connections is a silent no-op; nothing is queued.
func (e *Engine) SendToUser(userID string, evt events.Event) int {
	connIDs := e.registry.ConnectionsOf(userID)
	if len(connIDs) == 0 {
		return 0
	}
	payload, ok := e.encode(evt)
	if !ok {
		return 0
	}

	delivered := 0
	for _, connID := range connIDs {
		if e.deliver(connID, payload) {
			delivered++
		}
	}
	return delivered
}

func (e *Engine) encode(evt events.Event) ([]byte, bool) {
	payload, err := events.Encode(evt)
	if err != nil {
		e.log.Error("Failed to encode event", "event", evt.EventName(), "error", err)
		return nil, false
	}
	return payload, true
}

func (e *Engine) deliver(connID string, payload []byte) bool {
	conn, ok := e.conns.Load(connID)
	if !ok {
		return false
	}
	return e.send(conn, payload)
}

func (e *Engine) send(conn Conn, payload []byte) bool {
	if conn.Send(payload) {
		return true
	}
	e.log.Warn("Dropped event for connection", "conn", conn.ID(), "user", conn.UserID())
	return false
}
