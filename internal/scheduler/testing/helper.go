// Package testing holds helpers that move outbox tasks through time in tests.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
	"gorm.io/gorm"
)

// TimeAccelerator rewrites outbox timestamps so tests do not wait for backoff
// or lease expiry.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// FastForwardTask makes a pending task due at now.
func (ta *TimeAccelerator) FastForwardTask(ctx context.Context, taskID snowflake.ID, now time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		now.Add(-time.Second),
		now,
		taskID,
		outboxdomain.StatusPending,
	).Error
}

// FastForwardAllPending makes every pending task due at now.
func (ta *TimeAccelerator) FastForwardAllPending(ctx context.Context, now time.Time) (int64, error) {
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET next_attempt_at = ?, updated_at = ?
		 WHERE status = ? AND next_attempt_at > ?`,
		now.Add(-time.Second),
		now,
		outboxdomain.StatusPending,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExpireLeases simulates a crashed worker by ending every active lease.
func (ta *TimeAccelerator) ExpireLeases(ctx context.Context, now time.Time) (int64, error) {
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks
		 SET locked_until = ?, updated_at = ?
		 WHERE status = ?`,
		now.Add(-time.Second),
		now,
		outboxdomain.StatusProcessing,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
