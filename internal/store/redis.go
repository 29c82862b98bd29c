package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fields of the per-user hash.
const (
	versionField = "v"
	recordField  = "rec"
)

// KEYS[1] user hash, KEYS[2] online set.
// ARGV[1] version, ARGV[2] encoded record, ARGV[3] status, ARGV[4] user id,
// ARGV[5] tombstone ttl in milliseconds.
var versionedWrite = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'rec', ARGV[2])
if ARGV[3] == 'online' then
  redis.call('PERSIST', KEYS[1])
  redis.call('SADD', KEYS[2], ARGV[4])
else
  redis.call('SREM', KEYS[2], ARGV[4])
  if tonumber(ARGV[5]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[5])
  end
end
return 1
`)

// RedisConfig configures the Redis driver.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. The default hash tag keeps all keys in
	// one cluster slot so the script may touch them together.
	Prefix       string
	TombstoneTTL time.Duration
}

// Redis stores presence in per-user hashes plus a set of online users.
type Redis struct {
	client       redis.UniversalClient
	prefix       string
	tombstoneTTL time.Duration
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: connect redis %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg.Prefix, cfg.TombstoneTTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string, tombstoneTTL time.Duration) *Redis {
	if prefix == "" {
		prefix = "{presence}:"
	}
	return &Redis{client: client, prefix: prefix, tombstoneTTL: tombstoneTTL}
}

func (s *Redis) userKey(userID string) string { return s.prefix + "user:" + userID }
func (s *Redis) onlineKey() string            { return s.prefix + "online" }

func (s *Redis) write(ctx context.Context, rec Record) (bool, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	res, err := versionedWrite.Run(ctx, s.client,
		[]string{s.userKey(rec.UserID), s.onlineKey()},
		rec.Version, data, string(rec.Status), rec.UserID, s.tombstoneTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("store: redis write %s: %w", rec.UserID, err)
	}
	return res == 1, nil
}

func (s *Redis) Put(ctx context.Context, rec Record) (bool, error) {
	if err := rec.validate(); err != nil {
		return false, err
	}
	rec.Status = Online
	return s.write(ctx, rec)
}

func (s *Redis) Delete(ctx context.Context, userID string, version uint64) (bool, error) {
	rec := tombstone(userID, version)
	if err := rec.validate(); err != nil {
		return false, err
	}
	return s.write(ctx, rec)
}

func (s *Redis) Get(ctx context.Context, userID string) (Record, bool, error) {
	data, err := s.client.HGet(ctx, s.userKey(userID), recordField).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("store: redis get %s: %w", userID, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return Record{}, false, err
	}
	if rec.Status != Online {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Redis) GetAll(ctx context.Context) ([]Record, error) {
	users, err := s.client.SMembers(ctx, s.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list online: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(users))
	for i, u := range users {
		cmds[i] = pipe.HGet(ctx, s.userKey(u), recordField)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: redis read online records: %w", err)
	}

	records := make([]Record, 0, len(users))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		rec, err := decodeRecord(data)
		if err != nil || rec.Status != Online {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
