package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/ambassador/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ambassador/internal/observability/metrics"
	"github.com/smallbiznis/ambassador/internal/observability/tracing"
	"go.uber.org/zap"
)

// jobRun accumulates what one tick of a job did so it can be reported in a
// single finish line.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time

	processed int
	errors    int
	delivered int
	retried   int
	failed    int
	skipped   int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processed += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errors++
	}
}

// RecordOutcome counts an outbox dispatch result.
func (r *jobRun) RecordOutcome(result string) {
	if r == nil {
		return
	}
	switch result {
	case obsmetrics.OutboxResultDone:
		r.delivered++
	case obsmetrics.OutboxResultRetry:
		r.retried++
	case obsmetrics.OutboxResultFailed:
		r.failed++
	case obsmetrics.OutboxResultSkipped:
		r.skipped++
	}
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

// logJobFinish is quiet for idle ticks, info when work was done and warn
// when anything went wrong.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.errors),
	}
	if run.job == JobOutboxDispatch && run.processed > 0 {
		fields = append(fields,
			zap.Int("delivered", run.delivered),
			zap.Int("retried", run.retried),
			zap.Int("failed", run.failed),
			zap.Int("skipped", run.skipped),
		)
	}

	log := s.logger(ctx)
	switch {
	case run.errors > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.processed == 0:
		log.Debug("scheduler.job.finish", fields...)
	default:
		log.Info("scheduler.job.finish", fields...)
	}
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, job string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.String("error", tracing.SafeError(err).Error()),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
	}, fields...)...)
}
