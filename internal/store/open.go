package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Drivers accepted by Open.
const (
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverNATS   = "nats"
)

// Config selects and configures a driver.
type Config struct {
	Driver       string
	TombstoneTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	NATSURL    string
	NATSBucket string

	BadgerPath string

	Logger *slog.Logger
}

// Open returns the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverBadger, "":
		return NewBadger(BadgerConfig{Path: cfg.BadgerPath, TombstoneTTL: cfg.TombstoneTTL, Logger: cfg.Logger})
	case DriverRedis:
		return NewRedis(ctx, RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			Prefix:       cfg.RedisPrefix,
			TombstoneTTL: cfg.TombstoneTTL,
		})
	case DriverNATS:
		return NewNATS(ctx, NATSConfig{URL: cfg.NATSURL, Bucket: cfg.NATSBucket})
	default:
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, cfg.Driver)
	}
}
