package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, task *Task) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Task, error)
	// FetchDue returns pending tasks whose next attempt is due. With skipLocked
	// the rows are locked FOR UPDATE SKIP LOCKED for the surrounding transaction.
	FetchDue(ctx context.Context, db *gorm.DB, now time.Time, limit int, skipLocked bool) ([]*Task, error)
	MarkProcessing(ctx context.Context, db *gorm.DB, ids []snowflake.ID, lockedUntil, now time.Time) (int64, error)
	MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, now time.Time) (int64, error)
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) (int64, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) (int64, error)
	ReclaimExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	ResetFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, db *gorm.DB) (map[Status]int64, error)
}
