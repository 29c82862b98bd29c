// Package rooms tracks which connections have joined which rooms.
//
// Rooms have no explicit lifecycle: a room exists while at least one
// connection is joined to it and disappears with its last member.
package rooms

import "github.com/Tyrowin/gopresence/internal/shardmap"

// Membership owns the room -> connections table together with the reverse
// connection -> rooms index used to clean up on disconnect.
//
// Join, Leave and LeaveAll for one connection are expected to be issued from
// a single goroutine (the connection's own event loop); calls for different
// connections or rooms may run concurrently.
type Membership struct {
	members *shardmap.SetMap // room -> connections
	joined  *shardmap.SetMap // connection -> rooms
}

// New creates an empty Membership.
func New() *Membership {
	return &Membership{
		members: shardmap.NewSetMap(),
		joined:  shardmap.NewSetMap(),
	}
}

// Join adds connID to roomID. It reports whether the connection was not a
// member before.
func (m *Membership) Join(connID, roomID string) bool {
	added, _ := m.members.Add(roomID, connID)
	m.joined.Add(connID, roomID)
	return added
}

// Leave removes connID from roomID. It reports whether the connection was a
// member.
func (m *Membership) Leave(connID, roomID string) bool {
	removed, _ := m.members.Remove(roomID, connID)
	m.joined.Remove(connID, roomID)
	return removed
}

// LeaveAll removes connID from every room it joined and returns those rooms.
// The cost is proportional to the rooms of this connection only.
func (m *Membership) LeaveAll(connID string) []string {
	rooms := m.joined.RemoveKey(connID)
	for _, roomID := range rooms {
		m.members.Remove(roomID, connID)
	}
	return rooms
}

// Members returns a snapshot of the connections joined to roomID.
func (m *Membership) Members(roomID string) []string {
	return m.members.Members(roomID)
}

// RoomsOf returns a snapshot of the rooms connID has joined.
func (m *Membership) RoomsOf(connID string) []string {
	return m.joined.Members(connID)
}

// IsMember reports whether connID has joined roomID.
func (m *Membership) IsMember(connID, roomID string) bool {
	return m.members.Contains(roomID, connID)
}

// Rooms returns a snapshot of all non-empty rooms.
func (m *Membership) Rooms() []string {
	return m.members.Keys()
}
