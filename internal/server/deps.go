//go:generate go run go.uber.org/mock/mockgen -source=deps.go -destination=../mocks/mock_server.go -package=mocks
package server

import (
	"context"
	"time"

	"github.com/Tyrowin/gopresence/internal/profile"
)

// PresenceView answers presence queries of the HTTP API.
type PresenceView interface {
	IsActive(ctx context.Context, userID string) (bool, error)
	OnlineUsers(ctx context.Context) ([]string, error)
	LastSeen(userID string) (time.Time, bool)
}

// FriendsLookup lists the friends of the caller identified by a bearer token.
type FriendsLookup interface {
	Friends(ctx context.Context, token string) ([]profile.Friend, error)
}
