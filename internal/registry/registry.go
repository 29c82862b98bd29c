// Package registry maps each logical user to the set of transport
// connections currently open for it.
package registry

import "github.com/Tyrowin/gopresence/internal/shardmap"

// Registry is the process-local user -> connection-set table. It is safe for
// concurrent use; operations on different users touch different shards.
type Registry struct {
	users *shardmap.SetMap
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{users: shardmap.NewSetMap()}
}

// Register adds connID to the connections of userID. It returns true exactly
// when the user went from zero connections to one. Registering the same
// connection twice is a no-op.
func (r *Registry) Register(userID, connID string) bool {
	_, first := r.users.Add(userID, connID)
	return first
}

// Unregister removes connID from the connections of userID. It returns true
// exactly when the user is left with no connections. Unknown users or
// connections are ignored.
func (r *Registry) Unregister(userID, connID string) bool {
	_, emptied := r.users.Remove(userID, connID)
	return emptied
}

// ConnectionsOf returns a snapshot of the connections of userID.
func (r *Registry) ConnectionsOf(userID string) []string {
	return r.users.Members(userID)
}

// IsOnline reports whether userID holds at least one connection.
func (r *Registry) IsOnline(userID string) bool {
	return r.users.Size(userID) > 0
}

// ListOnlineUsers returns a snapshot of users holding at least one connection.
func (r *Registry) ListOnlineUsers() []string {
	return r.users.Keys()
}
