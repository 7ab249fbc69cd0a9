package scheduler

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"listing_syncer/internal/domain"
)

// Syncer is the sync engine driven by the scheduler and the worker.
type Syncer interface {
	Incremental(ctx context.Context) error
	Reconcile(ctx context.Context) error
	Expire(ctx context.Context) (int, error)
	Run(ctx context.Context, c domain.Cursor) error
}

// Queue hands out units of work.
type Queue interface {
	Claim(ctx context.Context) (*domain.Task, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, task *domain.Task, c domain.Cursor, delay time.Duration, cause error) error
}
