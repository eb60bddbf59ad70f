package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/affiliate/domain"
	"github.com/smallbiznis/ambassador/internal/affiliate/repository"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	dbpkg "github.com/smallbiznis/ambassador/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, repo domain.Repository) (*Service, *clock.FakeClock) {
	t.Helper()

	conn, err := dbpkg.NewTest(&domain.Affiliate{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	if repo == nil {
		repo = repository.Provide()
	}

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:     conn,
		Log:    zaptest.NewLogger(t),
		GenID:  node,
		Repo:   repo,
		Clock:  fake,
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
	}).(*Service)
	return svc, fake
}

func percentage(rate float64) domain.Terms {
	return domain.Terms{CommissionType: "percentage", CommissionRate: rate}
}

func TestUpsert_IsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	req := domain.UpsertRequest{Email: "A@x.com", Name: "Alice", DealName: "graph_123", Terms: percentage(15)}
	first, created, err := svc.Upsert(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "a@x.com", first.Email)
	assert.Equal(t, domain.StatusActive, first.Status)
	assert.True(t, strings.HasPrefix(first.ReferralCode, "alice-"))

	second, created, err := svc.Upsert(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ReferralCode, second.ReferralCode)

	items, err := svc.ListByGraph(ctx, "graph_123")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestUpsert_OneRowPerGraph(t *testing.T) {
	svc, fake := newTestService(t, nil)
	ctx := context.Background()

	a, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", Name: "Alice", DealName: "graph_1", Terms: percentage(10)})
	require.NoError(t, err)
	fake.Advance(time.Minute)
	b, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", Name: "Alice", DealName: "graph_2", Terms: percentage(20)})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	all, err := svc.ListByEmail(ctx, "A@X.COM")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	latest, err := svc.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, b.ID, latest.ID)

	missing, err := svc.FindByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsert_RegeneratesReferralCode(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	codes := []string{"dup-aaaaaa", "dup-aaaaaa", "dup-bbbbbb"}
	calls := 0
	svc.newReferral = func(string, string, int) (string, error) {
		code := codes[calls]
		calls++
		return code, nil
	}

	_, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", DealName: "g", Terms: percentage(5)})
	require.NoError(t, err)
	b, created, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "b@x.com", DealName: "g", Terms: percentage(5)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "dup-bbbbbb", b.ReferralCode)
	assert.Equal(t, 3, calls)
}

func TestUpsert_ReferralCodeExhausted(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	svc.newReferral = func(string, string, int) (string, error) { return "same-code", nil }
	_, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", DealName: "g", Terms: percentage(5)})
	require.NoError(t, err)

	_, _, err = svc.Upsert(ctx, domain.UpsertRequest{Email: "b@x.com", DealName: "g", Terms: percentage(5)})
	assert.ErrorIs(t, err, domain.ErrReferralCodeExhausted)
}

// staleRepo hides existing rows from the first lookup to reproduce two
// writers racing on the same (email, deal).
type staleRepo struct {
	domain.Repository
	hidden int
}

func (r *staleRepo) FindByEmailAndDeal(ctx context.Context, db *gorm.DB, email, dealName string) (*domain.Affiliate, error) {
	if r.hidden > 0 {
		r.hidden--
		return nil, nil
	}
	return r.Repository.FindByEmailAndDeal(ctx, db, email, dealName)
}

func TestUpsert_LosingRaceReturnsWinner(t *testing.T) {
	repo := &staleRepo{Repository: repository.Provide()}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	req := domain.UpsertRequest{Email: "a@x.com", Name: "Alice", DealName: "graph_123", Terms: percentage(15)}
	winner, _, err := svc.Upsert(ctx, req)
	require.NoError(t, err)

	repo.hidden = 1
	loser, created, err := svc.Upsert(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, loser.ID)
}

func TestUpsert_ValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "bad", DealName: "g", Terms: percentage(5)})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	_, _, err = svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", Terms: percentage(5)})
	assert.ErrorIs(t, err, domain.ErrInvalidDealName)
	_, _, err = svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", DealName: "g", Terms: domain.Terms{CommissionType: "fixed"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCommissionAmount)
}

func TestValidateTerms_MatchesInvitationRules(t *testing.T) {
	terms, err := validateTerms(domain.Terms{CommissionType: " Fixed ", CommissionRate: 12, CommissionAmount: 40})
	require.NoError(t, err)
	assert.Equal(t, invitationdomain.CommissionFixed, terms.CommissionType)
	assert.Zero(t, terms.CommissionRate)
	assert.Equal(t, 40.0, terms.CommissionAmount)

	terms, err = validateTerms(domain.Terms{CommissionType: "PERCENTAGE", CommissionRate: 12, CommissionAmount: 40})
	require.NoError(t, err)
	assert.Equal(t, invitationdomain.CommissionPercentage, terms.CommissionType)
	assert.Zero(t, terms.CommissionAmount)

	_, err = validateTerms(domain.Terms{CommissionType: "tiered", CommissionRate: 12})
	assert.ErrorIs(t, err, domain.ErrInvalidCommissionType)
	assert.ErrorIs(t, err, invitationdomain.ErrInvalidCommissionType)

	svc, _ := newTestService(t, nil)
	_, _, err = svc.Upsert(context.Background(), domain.UpsertRequest{Email: "Alice <a@x.com>", DealName: "g", Terms: percentage(5)})
	assert.ErrorIs(t, err, invitationdomain.ErrInvalidEmail)
}

func TestCountByGraphs_IncludesZeroes(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com"} {
		_, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: email, DealName: "graph_1", Terms: percentage(5)})
		require.NoError(t, err)
	}

	counts, err := svc.CountByGraphs(ctx, []string{"graph_1", "graph_2", "graph_1", " "})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"graph_1": 2, "graph_2": 0}, counts)
}

func TestUpdate_AppliesAllowedFields(t *testing.T) {
	svc, fake := newTestService(t, nil)
	ctx := context.Background()

	a, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", Name: "Alice", DealName: "g", Terms: percentage(15)})
	require.NoError(t, err)

	fake.Advance(time.Hour)
	paused := domain.StatusPaused
	fixed := "fixed"
	amount := 25.0
	updated, err := svc.Update(ctx, a.ID.String(), domain.AffiliateUpdate{
		Status:           &paused,
		CommissionType:   &fixed,
		CommissionAmount: &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, updated.Status)
	assert.Equal(t, "fixed", updated.CommissionType)
	assert.Equal(t, 25.0, updated.CommissionAmount)
	assert.Zero(t, updated.CommissionRate)
	assert.Equal(t, a.ReferralCode, updated.ReferralCode)
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))
}

func TestUpdate_RejectsInvalidChanges(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	a, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", DealName: "g", Terms: percentage(15)})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID.String(), domain.AffiliateUpdate{})
	assert.ErrorIs(t, err, domain.ErrEmptyUpdate)

	bogus := domain.Status("deleted")
	_, err = svc.Update(ctx, a.ID.String(), domain.AffiliateUpdate{Status: &bogus})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	rate := 150.0
	_, err = svc.Update(ctx, a.ID.String(), domain.AffiliateUpdate{CommissionRate: &rate})
	assert.ErrorIs(t, err, domain.ErrInvalidCommissionRate)

	_, err = svc.Update(ctx, "12345", domain.AffiliateUpdate{Status: &bogus})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Update(ctx, "abc", domain.AffiliateUpdate{Status: &bogus})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestFindByReferralCode(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	a, _, err := svc.Upsert(ctx, domain.UpsertRequest{Email: "a@x.com", Name: "Alice Smith", DealName: "g", Terms: percentage(15)})
	require.NoError(t, err)

	found, err := svc.FindByReferralCode(ctx, strings.ToUpper(a.ReferralCode))
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	_, err = svc.FindByReferralCode(ctx, "nope-123456")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
