// Package store persists user presence outside the process so that other
// replicas and the HTTP API can answer "is this user online".
//
// Every write carries a version. A write is applied only when its version is
// strictly greater than the stored one, and a disconnect leaves an offline
// tombstone behind, so a late online write can never overwrite a newer
// offline state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrNotConfigured is returned by Open for an unknown driver.
	ErrNotConfigured = errors.New("store: driver not configured")
	// ErrEmptyUserID is returned for writes without a user.
	ErrEmptyUserID = errors.New("store: empty user id")
)

// Status is the durable presence status of a user.
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
)

// Record is one user's durable presence entry.
type Record struct {
	UserID    string    `json:"userID"`
	Status    Status    `json:"status"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is implemented by every presence driver.
type Store interface {
	// Put writes an online record when rec.Version is newer than the stored one.
	Put(ctx context.Context, rec Record) (bool, error)
	// Delete writes an offline tombstone when version is newer than the stored one.
	Delete(ctx context.Context, userID string, version uint64) (bool, error)
	// Get returns the online record of userID. Tombstones are not found.
	Get(ctx context.Context, userID string) (Record, bool, error)
	// GetAll returns every online record.
	GetAll(ctx context.Context) ([]Record, error)
	Close() error
}

func (r Record) validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.Version == 0 {
		return fmt.Errorf("store: record for %q has no version", r.UserID)
	}
	return nil
}

func tombstone(userID string, version uint64) Record {
	return Record{UserID: userID, Status: Offline, Version: version, UpdatedAt: time.Now().UTC()}
}

func encodeRecord(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("store: encode record: %w", err)
	}
	return b, nil
}

func decodeRecord(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("store: decode record: %w", err)
	}
	return r, nil
}

// Clock hands out strictly increasing versions derived from wall time in
// microseconds. Microseconds stay exact in the float64 numbers Redis scripts
// compute with.
type Clock struct {
	last atomic.Uint64
	now  func() time.Time
}

// NewClock returns a Clock reading time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns a version greater than every version returned before.
func (c *Clock) Next() uint64 {
	for {
		last := c.last.Load()
		next := uint64(c.now().UnixMicro())
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
