package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsKeyPrefix = "u."
	// Concurrent writers to one key race on the revision; the loser re-reads.
	natsMaxAttempts = 5
)

// NATSConfig configures the JetStream KV driver.
type NATSConfig struct {
	URL    string
	Bucket string
	// InMemory selects memory storage for a bucket this driver creates.
	InMemory bool
}

// NATS stores presence in a JetStream key-value bucket. Updates are
// revision-checked so concurrent writers for one user never lose the newer
// version. Tombstones are kept as offline entries.
type NATS struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	bucket string
}

// NewNATS connects to NATS and opens, or creates, the bucket.
func NewNATS(ctx context.Context, cfg NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("gopresence"))
	if err != nil {
		return nil, fmt.Errorf("store: connect nats %s: %w", cfg.URL, err)
	}
	s, err := NewNATSWithConn(ctx, conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewNATSWithConn uses an existing connection. Close drains it.
func NewNATSWithConn(ctx context.Context, conn *nats.Conn, cfg NATSConfig) (*NATS, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "presence"
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("store: jetstream: %w", err)
	}

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		storage := jetstream.FileStorage
		if cfg.InMemory {
			storage = jetstream.MemoryStorage
		}
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "user presence",
			History:     1,
			Storage:     storage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("store: open bucket %s: %w", cfg.Bucket, err)
	}
	return &NATS{conn: conn, kv: kv, bucket: cfg.Bucket}, nil
}

func natsKey(userID string) string {
	return natsKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(userID))
}

func (s *NATS) write(ctx context.Context, rec Record) (bool, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	key := natsKey(rec.UserID)

	for attempt := 0; attempt < natsMaxAttempts; attempt++ {
		entry, err := s.kv.Get(ctx, key)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			_, err = s.kv.Create(ctx, key, data)
		case err != nil:
			return false, fmt.Errorf("store: nats get %s: %w", rec.UserID, err)
		default:
			cur, derr := decodeRecord(entry.Value())
			if derr == nil && cur.Version >= rec.Version {
				return false, nil
			}
			_, err = s.kv.Update(ctx, key, data, entry.Revision())
		}
		if err == nil {
			return true, nil
		}
		if !revisionConflict(err) {
			return false, fmt.Errorf("store: nats write %s: %w", rec.UserID, err)
		}
	}
	return false, fmt.Errorf("store: nats write %s: too many revision conflicts", rec.UserID)
}

func revisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var jsErr jetstream.JetStreamError
	if errors.As(err, &jsErr) && jsErr.APIError() != nil {
		return jsErr.APIError().ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}

func (s *NATS) Put(ctx context.Context, rec Record) (bool, error) {
	if err := rec.validate(); err != nil {
		return false, err
	}
	rec.Status = Online
	return s.write(ctx, rec)
}

func (s *NATS) Delete(ctx context.Context, userID string, version uint64) (bool, error) {
	rec := tombstone(userID, version)
	if err := rec.validate(); err != nil {
		return false, err
	}
	return s.write(ctx, rec)
}

func (s *NATS) Get(ctx context.Context, userID string) (Record, bool, error) {
	entry, err := s.kv.Get(ctx, natsKey(userID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("store: nats get %s: %w", userID, err)
	}
	rec, err := decodeRecord(entry.Value())
	if err != nil {
		return Record{}, false, err
	}
	if rec.Status != Online {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *NATS) GetAll(ctx context.Context) ([]Record, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: nats list keys: %w", err)
	}

	var records []Record
	for _, key := range keys {
		if !strings.HasPrefix(key, natsKeyPrefix) {
			continue
		}
		entry, err := s.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: nats get %s: %w", key, err)
		}
		rec, err := decodeRecord(entry.Value())
		if err != nil || rec.Status != Online {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *NATS) Close() error {
	return s.conn.Drain()
}
