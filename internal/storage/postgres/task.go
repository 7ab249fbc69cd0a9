package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"listing_syncer/internal/domain"
)

// TaskStore is the durable queue of units of work. A claimed task stays
// invisible until its visibility deadline; tasks of a family with a live
// claim are not handed out.
type TaskStore struct {
	db         *sqlx.DB
	visibility time.Duration
	now        func() time.Time
}

func NewTaskStore(db *sqlx.DB, visibility time.Duration) *TaskStore {
	return &TaskStore{db: db, visibility: visibility, now: time.Now}
}

// Schedule enqueues c in family. An identical pending payload is not enqueued twice.
func (s *TaskStore) Schedule(ctx context.Context, family string, c domain.Cursor) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	query := `
		INSERT INTO tasks (id, family, payload, dedupe_key, visible_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (family, dedupe_key) DO NOTHING`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		uuid.NewString(),
		family,
		payload,
		dedupeKey(family, payload),
		s.now(),
	)
	return err
}

// UnscheduleAll drops every task of family that is not currently being run.
func (s *TaskStore) UnscheduleAll(ctx context.Context, family string) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		DELETE FROM tasks
		WHERE family = $1 AND (claimed_at IS NULL OR visible_at <= $2)`,
		family, s.now(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NextScheduled returns the earliest visibility time of any task in family,
// running ones included, or nil when the family is idle.
func (s *TaskStore) NextScheduled(ctx context.Context, family string) (*time.Time, error) {
	var next sql.NullTime
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx,
		"SELECT MIN(visible_at) FROM tasks WHERE family = $1", family,
	).Scan(&next)
	if err != nil {
		return nil, err
	}
	if !next.Valid {
		return nil, nil
	}
	return &next.Time, nil
}

// Claim picks the oldest visible task whose family has no live claim and hides
// it for the visibility period. It returns nil, nil when nothing is runnable.
func (s *TaskStore) Claim(ctx context.Context) (*domain.Task, error) {
	now := s.now()

	query := `
		UPDATE tasks
		SET visible_at = $1, claimed_at = $2, attempts = attempts + 1
		WHERE id = (
			SELECT t.id FROM tasks t
			WHERE t.visible_at <= $2
				AND NOT EXISTS (
					SELECT 1 FROM tasks o
					WHERE o.family = t.family
						AND o.id <> t.id
						AND o.claimed_at IS NOT NULL
						AND o.visible_at > $2
				)
			ORDER BY t.visible_at, t.created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, family, payload, attempts`

	var (
		task    domain.Task
		payload []byte
	)
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, now.Add(s.visibility), now).
		Scan(&task.ID, &task.Family, &payload, &task.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &task.Cursor); err != nil {
		return nil, fmt.Errorf("decode task %s payload: %w", task.ID, err)
	}
	return &task, nil
}

// Ack removes a finished task.
func (s *TaskStore) Ack(ctx context.Context, id string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	return err
}

// Retry releases a claimed task to run again after delay from cursor c. When
// an identical task is already pending the claimed one is dropped instead.
func (s *TaskStore) Retry(ctx context.Context, task *domain.Task, c domain.Cursor, delay time.Duration, cause error) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	var lastError string
	if cause != nil {
		lastError = cause.Error()
	}

	query := `
		UPDATE tasks t
		SET payload = $2, dedupe_key = $3, visible_at = $4, claimed_at = NULL, last_error = $5
		WHERE t.id = $1
			AND NOT EXISTS (
				SELECT 1 FROM tasks o
				WHERE o.family = t.family AND o.dedupe_key = $3 AND o.id <> t.id
			)`

	exec := GetExecutor(ctx, s.db)
	res, err := exec.ExecContext(ctx, query, task.ID, payload, dedupeKey(task.Family, payload), s.now().Add(delay), lastError)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.Ack(ctx, task.ID)
	}
	return nil
}

func dedupeKey(family string, payload []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(family+":"), payload...)).String()
}
