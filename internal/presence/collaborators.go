//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../mocks/mock_presence.go -package=mocks
package presence

import (
	"context"
	"time"

	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/store"
)

// Store is the durable presence store shared by all replicas.
type Store interface {
	Put(ctx context.Context, rec store.Record) (bool, error)
	Delete(ctx context.Context, userID string, version uint64) (bool, error)
	Get(ctx context.Context, userID string) (store.Record, bool, error)
	GetAll(ctx context.Context) ([]store.Record, error)
}

// LastSeenNotifier records last-seen timestamps in the profile service.
type LastSeenNotifier interface {
	NotifyLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Broadcaster delivers presence events to every connected client.
type Broadcaster interface {
	BroadcastGlobal(evt events.Event) int
}
