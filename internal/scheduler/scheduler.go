package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Intervals configures the periodic triggers. A zero interval disables its trigger.
type Intervals struct {
	Incremental time.Duration
	Reconcile   time.Duration
	Expire      time.Duration
}

// Scheduler fires the recurring triggers: the incremental sync, the active-id
// reconciliation and the expiry sweep. Each trigger only enqueues work.
type Scheduler struct {
	syncer    Syncer
	intervals Intervals
	logger    *slog.Logger
}

func NewScheduler(syncer Syncer, intervals Intervals, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:    syncer,
		intervals: intervals,
		logger:    logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"incremental", s.intervals.Incremental,
		"reconcile", s.intervals.Reconcile,
		"expire", s.intervals.Expire,
	)

	s.runIncremental(ctx)

	incremental := newTicker(s.intervals.Incremental)
	defer incremental.Stop()
	reconcile := newTicker(s.intervals.Reconcile)
	defer reconcile.Stop()
	expire := newTicker(s.intervals.Expire)
	defer expire.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-incremental.C:
			s.runIncremental(ctx)
		case <-reconcile.C:
			s.runReconcile(ctx)
		case <-expire.C:
			s.runExpire(ctx)
		}
	}
}

func (s *Scheduler) runIncremental(ctx context.Context) {
	if s.intervals.Incremental <= 0 {
		return
	}
	if err := s.syncer.Incremental(ctx); err != nil {
		s.logger.Error("incremental sync trigger failed", "error", err)
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	if err := s.syncer.Reconcile(ctx); err != nil {
		s.logger.Error("reconciliation trigger failed", "error", err)
	}
}

func (s *Scheduler) runExpire(ctx context.Context) {
	expireCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.syncer.Expire(expireCtx); err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	}
}

type ticker struct {
	C <-chan time.Time
	t *time.Ticker
}

// newTicker returns a ticker that never fires for a non-positive interval.
func newTicker(d time.Duration) *ticker {
	if d <= 0 {
		return &ticker{}
	}
	t := time.NewTicker(d)
	return &ticker{C: t.C, t: t}
}

func (t *ticker) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
