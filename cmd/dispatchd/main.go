// Command dispatchd runs the dispatch webhook delivery service: the HTTP
// API, the delivery worker pool, the cleanup scheduler, and the retention
// sweeper, all in one process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/api"
	cacheredis "github.com/hookline/dispatch/cache/redis"
	queueredis "github.com/hookline/dispatch/queue/redis"
	"github.com/hookline/dispatch/store/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("dispatchd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	databaseURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	if databaseURL == "" || redisURL == "" {
		return errors.New("DATABASE_URL and REDIS_URL are required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgDrv := pgdriver.New()
	if err := pgDrv.Open(ctx, databaseURL); err != nil {
		return err
	}
	db, err := grove.Open(pgDrv)
	if err != nil {
		return err
	}

	redisDrv := redisdriver.New()
	if err := redisDrv.Open(ctx, redisURL); err != nil {
		return err
	}
	kvStore, err := kv.Open(redisDrv)
	if err != nil {
		return err
	}

	cfg := configFromEnv()

	st := postgres.New(db)
	q := queueredis.New(kvStore, cfg.VisibilityTimeout)
	cache := cacheredis.New(kvStore, st, cfg.SubscriptionCacheTTL)

	svc, err := dispatch.New(
		dispatch.WithStore(st),
		dispatch.WithQueue(q),
		dispatch.WithCache(cache),
		dispatch.WithLogger(logger),
		dispatch.WithConcurrency(cfg.Concurrency),
		dispatch.WithRequestTimeout(cfg.RequestTimeout),
		dispatch.WithMaxAttempts(cfg.MaxAttempts),
		dispatch.WithBackoffSchedule(cfg.BackoffSchedule),
		dispatch.WithRetentionWindow(cfg.RetentionWindow),
		dispatch.WithCleanupInterval(cfg.CleanupInterval),
		dispatch.WithSubscriptionCacheTTL(cfg.SubscriptionCacheTTL),
		dispatch.WithResponseBodyLimit(cfg.ResponseBodyLimit),
	)
	if err != nil {
		return err
	}

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	svc.Start(ctx)
	logger.Info("dispatchd started", "port", port)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewHandler(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	svc.Stop(shutdownCtx)

	if err := st.Close(); err != nil {
		logger.Warn("store close", "error", err)
	}
	if err := q.Close(); err != nil {
		logger.Warn("queue close", "error", err)
	}

	return nil
}

// configFromEnv builds the service configuration from environment variables,
// falling back to the defaults for anything unset.
func configFromEnv() dispatch.Config {
	cfg := dispatch.DefaultConfig()

	if n := envInt("MAX_ATTEMPTS"); n > 0 {
		cfg.MaxAttempts = n
	}
	if n := envInt("OUTBOUND_CONCURRENCY"); n > 0 {
		cfg.Concurrency = n
	}
	if n := envInt("REQUEST_TIMEOUT_SECONDS"); n > 0 {
		cfg.RequestTimeout = time.Duration(n) * time.Second
	}
	if n := envInt("RETENTION_HOURS"); n > 0 {
		cfg.RetentionWindow = time.Duration(n) * time.Hour
	}
	if n := envInt("CLEANUP_INTERVAL_MINUTES"); n > 0 {
		cfg.CleanupInterval = time.Duration(n) * time.Minute
	}
	if n := envInt("SUBSCRIPTION_CACHE_TTL_SECONDS"); n > 0 {
		cfg.SubscriptionCacheTTL = time.Duration(n) * time.Second
	}
	if n := envInt("RESPONSE_BODY_CAPTURE_BYTES"); n > 0 {
		cfg.ResponseBodyLimit = int64(n)
	}
	if raw := os.Getenv("BACKOFF_SCHEDULE_SECONDS"); raw != "" {
		if schedule := parseSchedule(raw); len(schedule) > 0 {
			cfg.BackoffSchedule = schedule
		}
	}

	return cfg
}

func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// parseSchedule parses a comma-separated list of seconds, e.g. "10,30,60,300,900".
func parseSchedule(raw string) []time.Duration {
	parts := strings.Split(raw, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		schedule = append(schedule, time.Duration(n)*time.Second)
	}
	return schedule
}
