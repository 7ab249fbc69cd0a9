package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/metrics"
)

const maxRetryDelay = 30 * time.Second

// WorkerConfig bounds how units are run and retried.
type WorkerConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
	MaxAttempts  int
}

// Worker claims units from the queue and runs them one at a time.
type Worker struct {
	queue  Queue
	syncer Syncer
	config WorkerConfig
	logger *slog.Logger
}

func NewWorker(queue Queue, syncer Syncer, cfg WorkerConfig, logger *slog.Logger) *Worker {
	return &Worker{
		queue:  queue,
		syncer: syncer,
		config: cfg,
		logger: logger.With("component", "worker"),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.config.PollInterval, "max_attempts", w.config.MaxAttempts)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain runs claimed units until the queue has nothing runnable.
func (w *Worker) Drain(ctx context.Context) int {
	var ran int
	for ctx.Err() == nil {
		task, err := w.queue.Claim(ctx)
		if err != nil {
			w.logger.Warn("claim failed", "error", err)
			return ran
		}
		if task == nil {
			return ran
		}
		w.execute(ctx, task)
		ran++
	}
	return ran
}

func (w *Worker) execute(ctx context.Context, task *domain.Task) {
	logger := w.logger.With("task_id", task.ID, "family", task.Family, "mode", task.Cursor.Mode, "attempt", task.Attempts)

	runCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	started := time.Now()
	err := w.syncer.Run(runCtx, task.Cursor)
	metrics.TaskDuration.WithLabelValues(task.Family).Observe(time.Since(started).Seconds())

	if err == nil {
		metrics.TasksExecuted.WithLabelValues(task.Family, "success").Inc()
		if ackErr := w.queue.Ack(ctx, task.ID); ackErr != nil {
			logger.Error("failed to ack task", "error", ackErr)
		}
		return
	}

	if domain.IsFatal(err) || task.Attempts >= w.config.MaxAttempts {
		metrics.TasksExecuted.WithLabelValues(task.Family, "dropped").Inc()
		logger.Error("unit failed, dropping", "error", err, "fatal", domain.IsFatal(err))
		if ackErr := w.queue.Ack(ctx, task.ID); ackErr != nil {
			logger.Error("failed to drop task", "error", ackErr)
		}
		return
	}

	cursor := task.Cursor
	var resumable *domain.ResumableError
	if errors.As(err, &resumable) {
		cursor = resumable.Cursor
	}

	delay := RetryDelay(task.Attempts)
	metrics.TasksExecuted.WithLabelValues(task.Family, "retry").Inc()
	logger.Warn("unit failed, retry scheduled", "error", err, "delay", delay.String(), "page", cursor.Page)

	if retryErr := w.queue.Retry(ctx, task, cursor, delay, err); retryErr != nil {
		logger.Error("failed to schedule retry", "error", retryErr)
	}
}

// RetryDelay is the backoff before retry number attempt: 1s, 2s, 4s, capped at 30s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxRetryDelay
	}
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
