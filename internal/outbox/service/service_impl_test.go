package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/outbox/domain"
	"github.com/smallbiznis/ambassador/internal/outbox/repository"
	dbpkg "github.com/smallbiznis/ambassador/pkg/db"
	"github.com/smallbiznis/ambassador/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, policy config.Policy) (*Service, *clock.FakeClock) {
	t.Helper()

	conn, err := dbpkg.NewTest(&domain.Task{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{Outbox: config.OutboxConfig{Lease: time.Minute}}
	svc := New(Params{
		DB:     conn,
		Log:    zaptest.NewLogger(t),
		GenID:  node,
		Repo:   repository.Provide(),
		Clock:  fake,
		Policy: config.NewStaticPolicyHolder(policy),
		Config: cfg,
	}).(*Service)
	svc.randomization = 0
	return svc, fake
}

func enqueueEmail(t *testing.T, svc *Service, ctx context.Context) domain.Task {
	t.Helper()
	invitationID := snowflake.ID(7)
	task, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		Kind:         domain.KindInvitationEmail,
		InvitationID: &invitationID,
		AggregateKey: "token-1",
		Payload:      map[string]any{"token": "token-1"},
	})
	require.NoError(t, err)
	return task
}

func TestEnqueueClaimComplete(t *testing.T) {
	svc, _ := newTestService(t, config.DefaultPolicy())
	ctx := correlation.ContextWithCorrelationID(context.Background(), "corr-1")

	task := enqueueEmail(t, svc, ctx)
	assert.Equal(t, domain.StatusPending, task.Status)
	assert.Equal(t, 8, task.MaxAttempts)
	assert.Equal(t, "corr-1", task.CorrelationID)

	claimed, err := svc.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, task.ID, claimed[0].ID)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, "token-1", claimed[0].PayloadString("token"))

	again, err := svc.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, svc.Complete(ctx, claimed[0]))
	stored, err := svc.GetByID(ctx, task.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, stored.Status)
	assert.Nil(t, stored.LockedUntil)
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestService(t, config.DefaultPolicy())
	_, err := svc.Enqueue(context.Background(), domain.EnqueueRequest{Kind: "sms"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestFailReschedulesWithBackoff(t *testing.T) {
	svc, fake := newTestService(t, config.DefaultPolicy())
	ctx := context.Background()
	enqueueEmail(t, svc, ctx)

	claimed, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	final, err := svc.Fail(ctx, claimed[0], errors.New("smtp: connection refused"))
	require.NoError(t, err)
	assert.False(t, final)

	stored, err := svc.GetByID(ctx, claimed[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, "smtp: connection refused", stored.LastError)
	assert.True(t, stored.NextAttemptAt.Equal(fake.Now().Add(30*time.Second)))

	none, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, none)

	fake.Advance(30 * time.Second)
	due, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].Attempts)
}

func TestStaleWorkerCannotOverwriteReclaimedTask(t *testing.T) {
	svc, fake := newTestService(t, config.DefaultPolicy())
	ctx := context.Background()
	enqueueEmail(t, svc, ctx)

	stale, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	fake.Advance(2 * time.Minute)
	reclaimed, err := svc.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	_, err = svc.Fail(ctx, stale[0], errors.New("late failure"))
	assert.ErrorIs(t, err, domain.ErrLeaseLost)

	fresh, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, 2, fresh[0].Attempts)

	assert.ErrorIs(t, svc.Complete(ctx, stale[0]), domain.ErrLeaseLost)
	_, err = svc.Fail(ctx, stale[0], domain.Permanent(errors.New("late failure")))
	assert.ErrorIs(t, err, domain.ErrLeaseLost)

	stored, err := svc.GetByID(ctx, fresh[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	assert.Empty(t, stored.LastError)

	require.NoError(t, svc.Complete(ctx, fresh[0]))
	stored, err = svc.GetByID(ctx, fresh[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, stored.Status)
}

func TestFailDeadLettersAfterMaxAttempts(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.OutboxMaxAttempts = 2
	svc, fake := newTestService(t, policy)
	ctx := context.Background()
	enqueueEmail(t, svc, ctx)

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := svc.Claim(ctx, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		final, err := svc.Fail(ctx, claimed[0], errors.New(strings.Repeat("x", 2000)))
		require.NoError(t, err)
		assert.Equal(t, attempt == 2, final)
		fake.Advance(time.Hour)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[domain.StatusFailed])

	claimed, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	svc, _ := newTestService(t, config.DefaultPolicy())
	ctx := context.Background()
	task := enqueueEmail(t, svc, ctx)

	claimed, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	final, err := svc.Fail(ctx, claimed[0], domain.Permanent(errors.New("invitation gone")))
	require.NoError(t, err)
	assert.True(t, final)

	stored, err := svc.GetByID(ctx, task.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, "invitation gone", stored.LastError)
	assert.LessOrEqual(t, len(stored.LastError), maxLastErrorLength)
}

func TestReclaimExpiredLease(t *testing.T) {
	svc, fake := newTestService(t, config.DefaultPolicy())
	ctx := context.Background()
	enqueueEmail(t, svc, ctx)

	claimed, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := svc.Reclaim(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	fake.Advance(2 * time.Minute)
	n, err = svc.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	again, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 2, again[0].Attempts)
}

func TestRetryFailedTask(t *testing.T) {
	svc, _ := newTestService(t, config.DefaultPolicy())
	ctx := context.Background()
	task := enqueueEmail(t, svc, ctx)

	_, err := svc.Retry(ctx, task.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotRetryable)

	claimed, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Fail(ctx, claimed[0], domain.Permanent(errors.New("bounced")))
	require.NoError(t, err)

	retried, err := svc.Retry(ctx, task.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, retried.Status)
	assert.Zero(t, retried.Attempts)
	assert.Empty(t, retried.LastError)

	_, err = svc.Retry(ctx, "999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Retry(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestEnqueueJoinsTransaction(t *testing.T) {
	svc, _ := newTestService(t, config.DefaultPolicy())
	ctx := context.Background()

	rollback := errors.New("rollback")
	err := svc.db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.WithTx(tx).Enqueue(ctx, domain.EnqueueRequest{Kind: domain.KindGraphMetadataRefresh, AggregateKey: "graph_1"})
		require.NoError(t, err)
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}
