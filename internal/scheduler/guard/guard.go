package guard

import (
	"errors"
	"time"

	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
)

var (
	ErrTaskNotProcessing = errors.New("outbox_task_not_processing")
	ErrLeaseExpired      = errors.New("outbox_task_lease_expired")
)

// EnsureTaskLeaseHeld rejects a claimed task whose lease ran out before its
// handler started. Such a task may already be reclaimed by another worker.
func EnsureTaskLeaseHeld(status outboxdomain.Status, lockedUntil *time.Time, now time.Time) error {
	if status != outboxdomain.StatusProcessing {
		return ErrTaskNotProcessing
	}
	if lockedUntil == nil || !now.Before(*lockedUntil) {
		return ErrLeaseExpired
	}
	return nil
}
