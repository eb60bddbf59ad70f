package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	obsmetrics "github.com/smallbiznis/ambassador/internal/observability/metrics"
	"github.com/smallbiznis/ambassador/internal/outbox/domain"
	"github.com/smallbiznis/ambassador/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxLastErrorLength = 1024

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Policy *config.PolicyHolder
	Config config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	clock  clock.Clock
	policy *config.PolicyHolder
	lease  time.Duration

	// randomization spreads retries of tasks that failed together.
	randomization float64
}

func New(p Params) domain.Service {
	lease := p.Config.Outbox.Lease
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("outbox.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		clock:         p.Clock,
		policy:        p.Policy,
		lease:         lease,
		randomization: retryRandomization,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (domain.Task, error) {
	switch req.Kind {
	case domain.KindInvitationEmail, domain.KindGraphMetadataRefresh:
	default:
		return domain.Task{}, domain.ErrInvalidKind
	}

	_, correlationID := correlation.EnsureCorrelationID(ctx)
	now := s.clock.Now()
	payload := datatypes.JSONMap{}
	for k, v := range req.Payload {
		payload[k] = v
	}

	task := domain.Task{
		ID:            s.genID.Generate(),
		Kind:          req.Kind,
		InvitationID:  req.InvitationID,
		AggregateKey:  strings.TrimSpace(req.AggregateKey),
		Payload:       payload,
		Status:        domain.StatusPending,
		MaxAttempts:   s.policy.Get().OutboxMaxAttempts,
		NextAttemptAt: now,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (s *Service) Claim(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := s.clock.Now()
	lockedUntil := now.Add(s.lease)
	skipLocked := s.db.Dialector.Name() != "sqlite"

	var claimed []domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		due, err := s.repo.FetchDue(ctx, tx, now, limit, skipLocked)
		obsmetrics.Scheduler().ObserveDBLockWait(obsmetrics.LockResourceOutboxTasks, time.Since(lockStart))
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(due))
		for _, task := range due {
			ids = append(ids, task.ID)
		}
		if _, err := s.repo.MarkProcessing(ctx, tx, ids, lockedUntil, now); err != nil {
			return err
		}

		claimed = make([]domain.Task, 0, len(due))
		for _, task := range due {
			task.Status = domain.StatusProcessing
			task.Attempts++
			task.LockedUntil = &lockedUntil
			claimed = append(claimed, *task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Service) Complete(ctx context.Context, task domain.Task) error {
	affected, err := s.repo.MarkDone(ctx, s.db, task.ID, task.Attempts, s.clock.Now())
	return leaseResult(affected, err)
}

func (s *Service) Fail(ctx context.Context, task domain.Task, cause error) (bool, error) {
	now := s.clock.Now()
	message := truncate(errorMessage(cause), maxLastErrorLength)

	if domain.IsPermanent(cause) || task.Attempts >= task.MaxAttempts {
		affected, err := s.repo.MarkFailed(ctx, s.db, task.ID, task.Attempts, message, now)
		return true, leaseResult(affected, err)
	}

	policy := s.policy.Get()
	delay := Backoff(task.Attempts, policy.OutboxBackoffBase, policy.OutboxBackoffMax, s.randomization)
	affected, err := s.repo.Reschedule(ctx, s.db, task.ID, task.Attempts, now.Add(delay), message, now)
	return false, leaseResult(affected, err)
}

func leaseResult(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// Reclaim returns tasks whose lease ran out, typically after a worker crash,
// to the pending queue.
func (s *Service) Reclaim(ctx context.Context) (int64, error) {
	return s.repo.ReclaimExpired(ctx, s.db, s.clock.Now())
}

func (s *Service) Retry(ctx context.Context, id string) (domain.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return domain.Task{}, err
	}
	current, err := s.repo.FindByID(ctx, s.db, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if current == nil {
		return domain.Task{}, domain.ErrNotFound
	}

	affected, err := s.repo.ResetFailed(ctx, s.db, taskID, s.clock.Now())
	if err != nil {
		return domain.Task{}, err
	}
	if affected == 0 {
		return domain.Task{}, domain.ErrNotRetryable
	}

	updated, err := s.repo.FindByID(ctx, s.db, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if updated == nil {
		return domain.Task{}, domain.ErrNotFound
	}
	s.log.Info("outbox task re-queued",
		zap.String("task_id", taskID.String()),
		zap.String("kind", string(updated.Kind)),
	)
	return *updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := s.repo.FindByID(ctx, s.db, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task == nil {
		return domain.Task{}, domain.ErrNotFound
	}
	return *task, nil
}

func (s *Service) Stats(ctx context.Context) (map[domain.Status]int64, error) {
	return s.repo.CountByStatus(ctx, s.db)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return strings.ToValidUTF8(value[:limit], "")
}

var _ domain.Service = (*Service)(nil)
