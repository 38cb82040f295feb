package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hookline/dispatch/observability"
	"github.com/hookline/dispatch/queue"
)

// SweeperStore is the persistence surface the sweeper needs.
type SweeperStore interface {
	PurgeAttemptsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// SweeperConfig holds sweeper configuration.
type SweeperConfig struct {
	// Window is how long delivery attempts are retained.
	Window time.Duration

	// BatchSize bounds each DELETE statement.
	BatchSize int

	// PollInterval is how often the cleanup lane is checked.
	PollInterval time.Duration

	Metrics *observability.Metrics
}

// Sweeper consumes cleanup tasks and purges delivery attempts older than the
// retention horizon in bounded batches. Each batch deletes by ID, so two
// sweeps running concurrently are safe: they simply split the rows.
type Sweeper struct {
	store  SweeperStore
	queue  queue.Queue
	config SweeperConfig
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a retention sweeper.
func NewSweeper(store SweeperStore, q queue.Queue, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Window <= 0 {
		cfg.Window = 72 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Sweeper{
		store:  store,
		queue:  q,
		config: cfg,
		logger: logger,
	}
}

// Start begins consuming the cleanup lane.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop cancels the consume loop and waits for an in-flight sweep.
func (s *Sweeper) Stop(_ context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leases, err := s.queue.Dequeue(ctx, queue.LaneCleanup, 1)
			if err != nil {
				s.logger.ErrorContext(ctx, "dequeue cleanup failed", "error", err)
				continue
			}
			for _, lease := range leases {
				s.handle(ctx, lease)
			}
		}
	}
}

func (s *Sweeper) handle(ctx context.Context, lease *queue.Lease) {
	if lease.Task.Kind != queue.KindCleanup {
		s.logger.WarnContext(ctx, "unexpected task kind on cleanup lane", "kind", lease.Task.Kind)
		if err := s.queue.Ack(ctx, lease); err != nil {
			s.logger.ErrorContext(ctx, "ack failed", "error", err)
		}
		return
	}

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		if nackErr := s.queue.Nack(ctx, lease); nackErr != nil {
			s.logger.ErrorContext(ctx, "nack failed", "error", nackErr)
		}
		return
	}

	if err := s.queue.Ack(ctx, lease); err != nil {
		s.logger.ErrorContext(ctx, "ack failed", "error", err)
	}
}

// Sweep deletes every attempt older than the retention cutoff, in batches,
// and returns the total number of rows deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.Window)

	var total int64
	for {
		n, err := s.store.PurgeAttemptsBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if s.config.Metrics != nil && n > 0 {
			s.config.Metrics.AttemptsPurgedTotal.Add(float64(n))
		}
		if n == 0 {
			break
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "retention sweep complete", "deleted", total, "cutoff", cutoff)
	} else {
		s.logger.DebugContext(ctx, "retention sweep found nothing to delete", "cutoff", cutoff)
	}
	return total, nil
}
