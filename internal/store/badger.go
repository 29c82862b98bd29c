package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("presence/user/")

const badgerMaxAttempts = 5

// BadgerConfig configures the embedded driver. An empty Path keeps the
// database in memory.
type BadgerConfig struct {
	Path         string
	TombstoneTTL time.Duration
	// Logger reports skipped records. Nil discards.
	Logger *slog.Logger
}

// Badger is an embedded store for single-replica and development setups.
type Badger struct {
	db           *badger.DB
	tombstoneTTL time.Duration
	log          *slog.Logger
}

// NewBadger opens the database.
func NewBadger(cfg BadgerConfig) (*Badger, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Badger{db: db, tombstoneTTL: cfg.TombstoneTTL, log: log}, nil
}

func badgerKey(userID string) []byte {
	return append(append([]byte{}, badgerPrefix...), userID...)
}

func readRecord(item *badger.Item) (Record, error) {
	v, err := item.ValueCopy(nil)
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(v)
}

func (s *Badger) write(ctx context.Context, rec Record) (bool, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	key := badgerKey(rec.UserID)

	for attempt := 0; attempt < badgerMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		applied := false
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if cur, err := readRecord(item); err == nil && cur.Version >= rec.Version {
					return nil
				}
			}

			entry := badger.NewEntry(key, data)
			if rec.Status == Offline && s.tombstoneTTL > 0 {
				entry = entry.WithTTL(s.tombstoneTTL)
			}
			applied = true
			return txn.SetEntry(entry)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("store: badger write %s: %w", rec.UserID, err)
		}
		return applied, nil
	}
	return false, fmt.Errorf("store: badger write %s: %w", rec.UserID, badger.ErrConflict)
}

func (s *Badger) Put(ctx context.Context, rec Record) (bool, error) {
	if err := rec.validate(); err != nil {
		return false, err
	}
	rec.Status = Online
	return s.write(ctx, rec)
}

func (s *Badger) Delete(ctx context.Context, userID string, version uint64) (bool, error) {
	rec := tombstone(userID, version)
	if err := rec.validate(); err != nil {
		return false, err
	}
	return s.write(ctx, rec)
}

func (s *Badger) Get(_ context.Context, userID string) (Record, bool, error) {
	var rec Record
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec, err = readRecord(item)
		found = err == nil && rec.Status == Online
		return err
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("store: badger get %s: %w", userID, err)
	}
	if !found {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Badger) GetAll(_ context.Context) ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			rec, err := readRecord(it.Item())
			if err != nil {
				s.log.Warn("Skipping unreadable presence record", "key", string(it.Item().Key()), "error", err)
				continue
			}
			if rec.Status == Online {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: badger list: %w", err)
	}
	return records, nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}
