package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EnqueueRequest struct {
	Kind         Kind
	InvitationID *snowflake.ID
	AggregateKey string
	Payload      map[string]any
}

type Service interface {
	WithTx(tx *gorm.DB) Service

	Enqueue(context.Context, EnqueueRequest) (Task, error)
	// Claim leases up to limit due tasks to the caller.
	Claim(ctx context.Context, limit int) ([]Task, error)
	Complete(ctx context.Context, task Task) error
	// Fail records a failed attempt. It reports true when the task will not be
	// retried again.
	Fail(ctx context.Context, task Task, cause error) (bool, error)
	Reclaim(ctx context.Context) (int64, error)
	Retry(ctx context.Context, id string) (Task, error)
	GetByID(ctx context.Context, id string) (Task, error)
	Stats(ctx context.Context) (map[Status]int64, error)
}

// Handler delivers one kind of task.
type Handler interface {
	Kind() Kind
	Handle(ctx context.Context, task Task) error
	// Exhausted is called once the task has been moved to failed.
	Exhausted(ctx context.Context, task Task, cause error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var target *permanentError
	return errors.As(err, &target)
}

var (
	ErrInvalidKind  = errors.New("invalid_task_kind")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("task_not_found")
	ErrNotRetryable = errors.New("task_not_failed")
	ErrNoHandler    = errors.New("no_handler_for_kind")
	// ErrLeaseLost means the task was reclaimed or claimed again after the
	// caller's lease ran out.
	ErrLeaseLost = errors.New("task_lease_lost")
)
