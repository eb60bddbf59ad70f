package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	obsmetrics "github.com/smallbiznis/ambassador/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
	"github.com/smallbiznis/ambassador/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobOutboxDispatch = "outbox_dispatch"
	JobOutboxReclaim  = "outbox_reclaim"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Outbox   outboxdomain.Service
	Handlers []outboxdomain.Handler `group:"outbox_handlers"`
	Locker   *ratelimit.Locker      `optional:"true"`
	Config   Config                 `optional:"true"`
}

// Scheduler delivers outbox tasks on a fixed interval.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	outboxSvc outboxdomain.Service
	handlers  map[outboxdomain.Kind]outboxdomain.Handler
	locker    *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Outbox == nil {
		return nil, ErrInvalidConfig
	}
	handlers := make(map[outboxdomain.Kind]outboxdomain.Handler, len(p.Handlers))
	for _, h := range p.Handlers {
		if h == nil {
			continue
		}
		if _, dup := handlers[h.Kind()]; dup {
			return nil, fmt.Errorf("%w: duplicate handler for %s", ErrInvalidConfig, h.Kind())
		}
		handlers[h.Kind()] = h
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		outboxSvc: p.Outbox,
		handlers:  handlers,
		locker:    p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errors == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadlines are soft: the remaining tasks stay leased and are picked up
	// again once the lease runs out.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// withJobLock runs fn while holding the cluster-wide lock for job. Without a
// redis client the job runs unguarded and relies on SKIP LOCKED claims.
func (s *Scheduler) withJobLock(ctx context.Context, job string, ttl time.Duration, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	key := ratelimit.JobKey(job)
	token, ok, err := s.locker.TryLock(ctx, key, ttl)
	if err != nil {
		s.logger(ctx).Warn("scheduler lock unavailable, running unguarded",
			zap.String("job", job),
			zap.Error(err),
		)
		return fn(ctx)
	}
	if !ok {
		obsmetrics.Scheduler().IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("scheduler.job.deferred", zap.String("job", job))
		return nil
	}
	defer func() {
		// The parent context may already be done; release with a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobOutboxReclaim, s.isJobEnabled(JobOutboxReclaim), func(ctx context.Context) error {
			return s.withJobLock(ctx, JobOutboxReclaim, s.cfg.JobTimeout, func(ctx context.Context) error {
				return s.runJob(ctx, JobOutboxReclaim, 0, 30*time.Second, s.ReclaimOutboxJob)
			})
		}},
		{JobOutboxDispatch, s.isJobEnabled(JobOutboxDispatch), func(ctx context.Context) error {
			return s.withJobLock(ctx, JobOutboxDispatch, s.cfg.JobTimeout, func(ctx context.Context) error {
				return s.runJob(ctx, JobOutboxDispatch, s.cfg.BatchSize, s.cfg.JobTimeout, s.DispatchOutboxJob)
			})
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
