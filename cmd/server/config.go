package main

import "time"

// Config holds the process settings. Transport and HTTP settings are read
// separately by server.NewConfigFromEnv.
type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	StoreDriver   string        `env:"STORE_DRIVER,default=badger"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT,default=3s"`
	TombstoneTTL  time.Duration `env:"TOMBSTONE_TTL,default=24h"`
	RedisAddr     string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	RedisPrefix   string        `env:"REDIS_PREFIX"`
	NATSURL       string        `env:"NATS_URL,default=nats://localhost:4222"`
	NATSBucket    string        `env:"NATS_BUCKET,default=presence"`
	BadgerPath    string        `env:"BADGER_PATH"`

	ProfileBaseURL    string        `env:"PROFILE_BASE_URL"`
	ProfileTimeout    time.Duration `env:"PROFILE_TIMEOUT,default=5s"`
	ProfileMaxRetries uint64        `env:"PROFILE_MAX_RETRIES,default=3"`

	PresenceMaxInFlight       int64 `env:"PRESENCE_MAX_IN_FLIGHT,default=256"`
	PresenceRecentOfflineSize int   `env:"PRESENCE_RECENT_OFFLINE_SIZE,default=10000"`
	LegacyStatusEvents        bool  `env:"LEGACY_STATUS_EVENTS,default=false"`
}
