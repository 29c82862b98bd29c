// Package presence turns connection registry changes into user_online and
// user_offline transitions and keeps the durable store in step with them.
//
// Register/unregister and the transition check run under a per-user lock, so
// the last two connections of a user closing together yield exactly one
// offline transition. Durable writes and last-seen notifications run
// asynchronously after the broadcast and never delay it. Every durable write
// carries a version from a monotonic clock and is applied only if newer, so a
// slow offline write cannot clobber the online record of a quick reconnect.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/Tyrowin/gopresence/internal/events"
	"github.com/Tyrowin/gopresence/internal/keylock"
	"github.com/Tyrowin/gopresence/internal/registry"
	"github.com/Tyrowin/gopresence/internal/store"
)

// Side effect names used in logs and metrics.
const (
	effectStorePut    = "store_put"
	effectStoreDelete = "store_delete"
	effectLastSeen    = "last_seen"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("presence: coordinator closed")

// Config tunes the coordinator.
type Config struct {
	// StoreTimeout bounds each durable store call.
	StoreTimeout time.Duration
	// NotifyTimeout bounds one last-seen notification including its retries.
	NotifyTimeout time.Duration
	// MaxInFlight bounds concurrent side effects. When exhausted, new side
	// effects wait for a slot on their own goroutine.
	MaxInFlight int64
	// RecentOfflineSize bounds the in-memory last-seen cache.
	RecentOfflineSize int
	// LegacyStatusEvents also emits user_status next to online/offline.
	LegacyStatusEvents bool
}

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 3 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 15 * time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 256
	}
	if c.RecentOfflineSize <= 0 {
		c.RecentOfflineSize = 10000
	}
	return c
}

// Coordinator is the presence coordinator.
type Coordinator struct {
	cfg         Config
	registry    *registry.Registry
	store       Store
	notifier    LastSeenNotifier
	broadcaster Broadcaster
	clock       *store.Clock
	locks       *keylock.Locker
	lastSeen    *lru.Cache[string, time.Time]
	log         *slog.Logger
	now         func() time.Time

	slots   *semaphore.Weighted
	pending sync.WaitGroup
	// closeMu orders pending.Add before the Wait in Close.
	closeMu sync.Mutex
	closed  bool

	transitions metric.Int64Counter
	failures    metric.Int64Counter
}

// New creates a Coordinator. notifier may be nil when no profile service is
// configured.
func New(cfg Config, reg *registry.Registry, st Store, notifier LastSeenNotifier, b Broadcaster, log *slog.Logger) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	cache, err := lru.New[string, time.Time](cfg.RecentOfflineSize)
	if err != nil {
		return nil, fmt.Errorf("presence: last seen cache: %w", err)
	}

	meter := otel.Meter("gopresence/presence")
	transitions, err := meter.Int64Counter("presence_transitions_total",
		metric.WithDescription("Online and offline transitions"))
	if err != nil {
		return nil, fmt.Errorf("presence: transitions counter: %w", err)
	}
	failures, err := meter.Int64Counter("presence_side_effect_failures_total",
		metric.WithDescription("Failed durable store writes and last-seen notifications"))
	if err != nil {
		return nil, fmt.Errorf("presence: failures counter: %w", err)
	}

	return &Coordinator{
		cfg:         cfg,
		registry:    reg,
		store:       st,
		notifier:    notifier,
		broadcaster: b,
		clock:       store.NewClock(),
		locks:       keylock.New(),
		lastSeen:    cache,
		log:         log,
		now:         time.Now,
		slots:       semaphore.NewWeighted(cfg.MaxInFlight),
		transitions: transitions,
		failures:    failures,
	}, nil
}

// OnConnect registers connID for userID and reports whether the user just
// came online.
func (c *Coordinator) OnConnect(userID, connID string) bool {
	unlock := c.locks.Lock(userID)
	defer unlock()

	if !c.registry.Register(userID, connID) {
		return false
	}

	version := c.clock.Next()
	at := c.now().UTC()
	c.lastSeen.Remove(userID)
	c.log.Info("User online", "user", userID, "conn", connID)
	c.count(store.Online)

	c.background(effectStorePut, userID, c.cfg.StoreTimeout, func(ctx context.Context) error {
		_, err := c.store.Put(ctx, store.Record{UserID: userID, Status: store.Online, Version: version, UpdatedAt: at})
		return err
	})

	c.broadcaster.BroadcastGlobal(events.UserOnline{UserID: userID})
	if c.cfg.LegacyStatusEvents {
		c.broadcaster.BroadcastGlobal(events.UserStatus{UserID: userID, Status: string(store.Online)})
	}
	return true
}

// OnDisconnect unregisters connID and reports whether the user just went
// offline. Unknown pairs are ignored.
func (c *Coordinator) OnDisconnect(userID, connID string) bool {
	unlock := c.locks.Lock(userID)
	defer unlock()

	if !c.registry.Unregister(userID, connID) {
		return false
	}

	version := c.clock.Next()
	at := c.now().UTC()
	c.lastSeen.Add(userID, at)
	c.log.Info("User offline", "user", userID, "conn", connID)
	c.count(store.Offline)

	c.background(effectStoreDelete, userID, c.cfg.StoreTimeout, func(ctx context.Context) error {
		_, err := c.store.Delete(ctx, userID, version)
		return err
	})

	c.broadcaster.BroadcastGlobal(events.UserOffline{UserID: userID, LastActive: at})
	if c.cfg.LegacyStatusEvents {
		c.broadcaster.BroadcastGlobal(events.UserStatus{UserID: userID, Status: string(store.Offline)})
	}

	if c.notifier != nil {
		c.background(effectLastSeen, userID, c.cfg.NotifyTimeout, func(ctx context.Context) error {
			return c.notifier.NotifyLastSeen(ctx, userID, at)
		})
	}
	return true
}

// LastSeen returns when userID last went offline on this replica. It is
// cleared when the user reconnects.
func (c *Coordinator) LastSeen(userID string) (time.Time, bool) {
	return c.lastSeen.Get(userID)
}

// IsActive reports whether the durable store holds an online record for userID.
func (c *Coordinator) IsActive(ctx context.Context, userID string) (bool, error) {
	_, found, err := c.store.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("presence: is active %s: %w", userID, err)
	}
	return found, nil
}

// OnlineUsers returns the users online on any replica.
func (c *Coordinator) OnlineUsers(ctx context.Context) ([]string, error) {
	records, err := c.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("presence: online users: %w", err)
	}
	users := make([]string, 0, len(records))
	for _, r := range records {
		users = append(users, r.UserID)
	}
	return users, nil
}

// LocalOnlineUsers returns the users connected to this replica.
func (c *Coordinator) LocalOnlineUsers() []string {
	return c.registry.ListOnlineUsers()
}

// Close waits for in-flight side effects or until ctx is done.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.closeMu.Unlock()
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("presence: waiting for side effects: %w", ctx.Err())
	}
}

// background runs fn on its own goroutine. Once Close has started, fn runs
// on the caller's goroutine instead so nothing is added to a group being
// waited on.
func (c *Coordinator) background(effect, userID string, timeout time.Duration, fn func(ctx context.Context) error) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		c.log.Debug("Coordinator closed; running side effect inline", "effect", effect, "user", userID)
		c.run(effect, userID, timeout, fn)
		return
	}
	c.pending.Add(1)
	c.closeMu.Unlock()

	go func() {
		defer c.pending.Done()
		c.run(effect, userID, timeout, fn)
	}()
}

func (c *Coordinator) run(effect, userID string, timeout time.Duration, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.slots.Acquire(ctx, 1); err != nil {
		c.fail(effect, userID, err)
		return
	}
	defer c.slots.Release(1)

	if err := fn(ctx); err != nil {
		c.fail(effect, userID, err)
	}
}

func (c *Coordinator) fail(effect, userID string, err error) {
	c.log.Warn("Presence side effect failed", "effect", effect, "user", userID, "error", err)
	c.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("effect", effect)))
}

func (c *Coordinator) count(status store.Status) {
	c.transitions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", string(status))))
}
