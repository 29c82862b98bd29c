package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gopresence/internal/dispatch"
	"github.com/Tyrowin/gopresence/internal/fanout"
	"github.com/Tyrowin/gopresence/internal/presence"
	"github.com/Tyrowin/gopresence/internal/profile"
	"github.com/Tyrowin/gopresence/internal/registry"
	"github.com/Tyrowin/gopresence/internal/rooms"
	"github.com/Tyrowin/gopresence/internal/server"
	"github.com/Tyrowin/gopresence/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	serverConfig, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		Driver:        config.StoreDriver,
		TombstoneTTL:  config.TombstoneTTL,
		RedisAddr:     config.RedisAddr,
		RedisPassword: config.RedisPassword,
		RedisDB:       config.RedisDB,
		RedisPrefix:   config.RedisPrefix,
		NATSURL:       config.NATSURL,
		NATSBucket:    config.NATSBucket,
		BadgerPath:    config.BadgerPath,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("opening %s store: %w", config.StoreDriver, err)
	}
	defer func() {
		log.Info("Closing presence store", "driver", config.StoreDriver)
		_ = st.Close()
	}()

	var (
		notifier presence.LastSeenNotifier
		friends  server.FriendsLookup
	)
	if config.ProfileBaseURL != "" {
		client := profile.NewClient(profile.Config{
			BaseURL:    config.ProfileBaseURL,
			Timeout:    config.ProfileTimeout,
			MaxRetries: config.ProfileMaxRetries,
		}, log)
		notifier, friends = client, client
	} else {
		log.Warn("PROFILE_BASE_URL not set; last-seen notifications and friend listings are disabled")
	}

	reg := registry.New()
	engine := fanout.NewEngine(reg, rooms.New(), log)
	coordinator, err := presence.New(presence.Config{
		StoreTimeout:       config.StoreTimeout,
		MaxInFlight:        config.PresenceMaxInFlight,
		RecentOfflineSize:  config.PresenceRecentOfflineSize,
		LegacyStatusEvents: config.LegacyStatusEvents,
	}, reg, st, notifier, engine, log)
	if err != nil {
		return fmt.Errorf("presence coordinator: %w", err)
	}

	srv := server.New(serverConfig, dispatch.New(engine, coordinator, log), coordinator, friends, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	serveErr := g.Wait()

	// Connections are closed by now; flush the side effects they started.
	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := coordinator.Close(closeCtx); err != nil {
		log.Warn("Presence side effects did not finish", "error", err)
	}

	if serveErr != nil {
		return serveErr
	}
	log.Info("Program stopped cleanly")
	return nil
}
