// Package retention bounds storage growth: a scheduler emits periodic
// cleanup tasks and a sweeper purges delivery attempts past the retention
// window. Webhook rows are never purged; they carry the subscription-level
// history counts.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hookline/dispatch/queue"
)

// Scheduler emits one cleanup task per interval on the cleanup lane. It is
// the only producer on that lane. Running several scheduler instances only
// costs redundant sweeps: the sweep itself is idempotent.
type Scheduler struct {
	queue    queue.Queue
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a cleanup scheduler emitting every interval.
func NewScheduler(q queue.Queue, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		queue:    q,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the emission loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop cancels the emission loop.
func (s *Scheduler) Stop(_ context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Emit(ctx)
		}
	}
}

// Emit enqueues a single cleanup task, immediately visible.
func (s *Scheduler) Emit(ctx context.Context) {
	t := queue.NewCleanupTask()
	if err := s.queue.Enqueue(ctx, queue.LaneCleanup, t, 0); err != nil {
		s.logger.ErrorContext(ctx, "enqueue cleanup task failed", "error", err)
		return
	}
	s.logger.DebugContext(ctx, "cleanup task emitted", "task_id", t.ID)
}
