package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/outbox/domain"
	"gorm.io/gorm"
)

const taskColumns = `id, kind, invitation_id, aggregate_key, payload, status, attempts, max_attempts,
	next_attempt_at, locked_until, last_error, correlation_id, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, task *domain.Task) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_tasks (id, kind, invitation_id, aggregate_key, payload, status, attempts,
			max_attempts, next_attempt_at, last_error, correlation_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Kind,
		task.InvitationID,
		task.AggregateKey,
		task.Payload,
		task.Status,
		task.Attempts,
		task.MaxAttempts,
		task.NextAttemptAt,
		task.LastError,
		task.CorrelationID,
		task.CreatedAt,
		task.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Task, error) {
	var task domain.Task
	err := db.WithContext(ctx).Raw(
		`SELECT `+taskColumns+` FROM outbox_tasks WHERE id = ?`,
		id,
	).Scan(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ID == 0 {
		return nil, nil
	}
	return &task, nil
}

func (r *repo) FetchDue(ctx context.Context, db *gorm.DB, now time.Time, limit int, skipLocked bool) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + `
		 FROM outbox_tasks
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`
	if skipLocked {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var tasks []*domain.Task
	err := db.WithContext(ctx).Raw(query, domain.StatusPending, now, limit).Scan(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, ids []snowflake.ID, lockedUntil, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET status = ?, attempts = attempts + 1, locked_until = ?, updated_at = ?
		 WHERE id IN ? AND status = ?`,
		domain.StatusProcessing,
		lockedUntil,
		now,
		ids,
		domain.StatusPending,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET status = ?, locked_until = NULL, last_error = '', updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ?`,
		domain.StatusDone,
		now,
		id,
		domain.StatusProcessing,
		attempts,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET status = ?, next_attempt_at = ?, locked_until = NULL, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ?`,
		domain.StatusPending,
		nextAttemptAt,
		lastError,
		now,
		id,
		domain.StatusProcessing,
		attempts,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET status = ?, locked_until = NULL, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ?`,
		domain.StatusFailed,
		lastError,
		now,
		id,
		domain.StatusProcessing,
		attempts,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ReclaimExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET status = ?, locked_until = NULL, next_attempt_at = ?, updated_at = ?
		 WHERE status = ? AND locked_until < ?`,
		domain.StatusPending,
		now,
		now,
		domain.StatusProcessing,
		now,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ResetFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET status = ?, attempts = 0, next_attempt_at = ?, last_error = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending,
		now,
		now,
		id,
		domain.StatusFailed,
	)
	return res.RowsAffected, res.Error
}

type statusCount struct {
	Status domain.Status
	Total  int64
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.Status]int64, error) {
	var rows []statusCount
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total FROM outbox_tasks GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}
