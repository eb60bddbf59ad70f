package scheduler

import (
	"context"
	"errors"

	obsmetrics "github.com/smallbiznis/ambassador/internal/observability/metrics"
	"github.com/smallbiznis/ambassador/internal/observability/tracing"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
	"github.com/smallbiznis/ambassador/internal/scheduler/guard"
	"github.com/smallbiznis/ambassador/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ambassador/outbox")

// DispatchOutboxJob claims one batch of due tasks and hands each one to the
// handler registered for its kind.
func (s *Scheduler) DispatchOutboxJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobOutboxDispatch, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	tasks, err := s.outboxSvc.Claim(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.dispatchTask(ctx, run, task)
	}
	obsmetrics.Scheduler().AddBatchProcessed(JobOutboxDispatch, "outbox_tasks", len(tasks))
	return nil
}

// ReclaimOutboxJob puts tasks with an expired lease back in the queue.
func (s *Scheduler) ReclaimOutboxJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobOutboxReclaim, 0)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	reclaimed, err := s.outboxSvc.Reclaim(ctx)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		run.AddProcessed(int(reclaimed))
		obsmetrics.Scheduler().AddBatchProcessed(JobOutboxReclaim, "outbox_tasks", int(reclaimed))
		s.logger(ctx).Warn("outbox leases reclaimed", zap.Int64("count", reclaimed))
	}
	return nil
}

func (s *Scheduler) dispatchTask(ctx context.Context, run *jobRun, task outboxdomain.Task) {
	ctx = correlation.ContextWithCorrelationID(ctx, task.CorrelationID)
	ctx, span := tracer.Start(ctx, "outbox.dispatch")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("outbox.kind", string(task.Kind)),
		attribute.String("outbox.task_id", task.ID.String()),
		attribute.Int("outbox.attempt", task.Attempts),
	)...)

	kind := string(task.Kind)
	schedMetrics := obsmetrics.Scheduler()
	log := s.logger(ctx).With(
		zap.String("task_id", task.ID.String()),
		zap.String("kind", kind),
		zap.Int("attempt", task.Attempts),
	)
	run.AddProcessed(1)

	if err := guard.EnsureTaskLeaseHeld(task.Status, task.LockedUntil, s.clock.Now()); err != nil {
		schedMetrics.IncOutboxTask(kind, obsmetrics.OutboxResultSkipped)
		run.RecordOutcome(obsmetrics.OutboxResultSkipped)
		log.Warn("outbox task skipped", zap.Error(err))
		return
	}

	handler, ok := s.handlers[task.Kind]
	var handleErr error
	if !ok {
		handleErr = outboxdomain.Permanent(outboxdomain.ErrNoHandler)
	} else {
		handlerCtx, cancel := context.WithTimeout(ctx, s.cfg.HandlerTimeout)
		handleErr = handler.Handle(handlerCtx, task)
		cancel()
	}

	if handleErr == nil {
		if err := s.outboxSvc.Complete(ctx, task); err != nil {
			if errors.Is(err, outboxdomain.ErrLeaseLost) {
				s.leaseLost(run, kind, log)
				return
			}
			s.logSchedulerError(ctx, run, "outbox task completion failed", JobOutboxDispatch, err, zap.String("task_id", task.ID.String()))
			return
		}
		schedMetrics.IncOutboxTask(kind, obsmetrics.OutboxResultDone)
		run.RecordOutcome(obsmetrics.OutboxResultDone)
		schedMetrics.ObserveOutboxLag(kind, s.clock.Now().Sub(task.CreatedAt))
		log.Info("outbox task delivered")
		return
	}

	safeErr := tracing.SafeError(handleErr)
	span.RecordError(safeErr)
	span.SetStatus(codes.Error, "handler failed")

	final, err := s.outboxSvc.Fail(ctx, task, handleErr)
	if err != nil {
		if errors.Is(err, outboxdomain.ErrLeaseLost) {
			s.leaseLost(run, kind, log)
			return
		}
		s.logSchedulerError(ctx, run, "outbox task failure not recorded", JobOutboxDispatch, err, zap.String("task_id", task.ID.String()))
		return
	}
	run.IncError()
	if !final {
		schedMetrics.IncOutboxTask(kind, obsmetrics.OutboxResultRetry)
		run.RecordOutcome(obsmetrics.OutboxResultRetry)
		log.Warn("outbox task will be retried", zap.Error(safeErr))
		return
	}

	schedMetrics.IncOutboxTask(kind, obsmetrics.OutboxResultFailed)
	run.RecordOutcome(obsmetrics.OutboxResultFailed)
	log.Error("outbox task failed permanently", zap.Error(safeErr))
	if handler != nil {
		handler.Exhausted(ctx, task, handleErr)
	}
}

// leaseLost drops a result whose task was reclaimed while the handler ran.
// The task runs again under its new lease.
func (s *Scheduler) leaseLost(run *jobRun, kind string, log *zap.Logger) {
	obsmetrics.Scheduler().IncOutboxTask(kind, obsmetrics.OutboxResultSkipped)
	run.RecordOutcome(obsmetrics.OutboxResultSkipped)
	log.Warn("outbox task lease lost before its result was recorded")
}
