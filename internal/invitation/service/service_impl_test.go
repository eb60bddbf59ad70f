package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/invitation/domain"
	"github.com/smallbiznis/ambassador/internal/invitation/repository"
	dbpkg "github.com/smallbiznis/ambassador/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()

	conn, err := dbpkg.NewTest(&domain.Invitation{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(baseTime)
	svc := New(Params{
		DB:     conn,
		Log:    zaptest.NewLogger(t),
		GenID:  node,
		Repo:   repository.Provide(),
		Clock:  fake,
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
	}).(*Service)
	return svc, fake
}

func validRequest() domain.CreateInvitationRequest {
	return domain.CreateInvitationRequest{
		RecipientEmail: " A@X.com ",
		RecipientName:  "Alice",
		SenderName:     "Bob",
		SiteName:       "Vegvisr",
		Domain:         "Vegvisr.org",
		DealName:       "graph_123",
		CommissionType: "percentage",
		CommissionRate: 15,
	}
}

func TestCreate_PersistsPendingInvitation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, inv.Token)
	assert.Equal(t, "a@x.com", inv.RecipientEmail)
	assert.Equal(t, "vegvisr.org", inv.Domain)
	assert.Equal(t, domain.StatusPending, inv.Status)
	assert.Equal(t, domain.EmailStatusPending, inv.EmailStatus)
	assert.Equal(t, domain.MetadataStatusNone, inv.MetadataStatus)
	assert.Equal(t, baseTime.Add(7*24*time.Hour), inv.ExpiresAt)
	assert.Zero(t, inv.CommissionAmount)

	found, err := svc.Lookup(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)
	assert.Equal(t, "graph_123", found.DealName)
	assert.Equal(t, domain.StatusPending, found.Status)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*domain.CreateInvitationRequest)
		want   error
	}{
		"missing deal":    {func(r *domain.CreateInvitationRequest) { r.DealName = "  " }, domain.ErrInvalidDealName},
		"bad email":       {func(r *domain.CreateInvitationRequest) { r.RecipientEmail = "nope" }, domain.ErrInvalidEmail},
		"unknown type":    {func(r *domain.CreateInvitationRequest) { r.CommissionType = "tiered" }, domain.ErrInvalidCommissionType},
		"rate over 100":   {func(r *domain.CreateInvitationRequest) { r.CommissionRate = 101 }, domain.ErrInvalidCommissionRate},
		"fixed no amount": {func(r *domain.CreateInvitationRequest) { r.CommissionType = "fixed" }, domain.ErrInvalidCommissionAmount},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, svc.db.Model(&domain.Invitation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreate_RetriesTokenCollision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.newToken = func() (string, error) { return "fixed-token", nil }
	_, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	tokens := []string{"fixed-token", "fixed-token", "fresh-token"}
	calls := 0
	svc.newToken = func() (string, error) {
		token := tokens[calls]
		calls++
		return token, nil
	}
	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", inv.Token)
	assert.Equal(t, 3, calls)
}

func TestCreate_TokenExhausted(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.newToken = func() (string, error) { return "fixed-token", nil }
	_, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.Create(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrTokenExhausted)
}

func TestMarkAccepted_OnlyOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	accepted, err := svc.MarkAccepted(ctx, domain.AcceptRequest{Token: inv.Token, Email: "a@x.com", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedEmail)
	assert.Equal(t, "a@x.com", *accepted.AcceptedEmail)
	require.NotNil(t, accepted.AcceptedAt)

	_, err = svc.MarkAccepted(ctx, domain.AcceptRequest{Token: inv.Token, Email: "a@x.com", Name: "Alice"})
	assert.ErrorIs(t, err, domain.ErrAlreadyAccepted)
}

func TestMarkAccepted_Expired(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	fake.Advance(7*24*time.Hour + time.Second)

	_, err = svc.MarkAccepted(ctx, domain.AcceptRequest{Token: inv.Token, Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrExpired)

	found, err := svc.Lookup(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, found.Status)

	_, err = svc.MarkAccepted(ctx, domain.AcceptRequest{Token: inv.Token, Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestExpire_OnlyStampsPastTTL(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Expire(ctx, inv.Token))
	found, err := svc.Lookup(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, found.Status)

	fake.Advance(8 * 24 * time.Hour)
	require.NoError(t, svc.Expire(ctx, inv.Token))
	found, err = svc.Lookup(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, found.Status)
}

func TestMarkAccepted_UnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.MarkAccepted(context.Background(), domain.AcceptRequest{Token: "missing", Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.MarkAccepted(context.Background(), domain.AcceptRequest{Token: "", Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestMarkAccepted_ConcurrentCallersHaveOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MarkAccepted(ctx, domain.AcceptRequest{Token: inv.Token, Email: "a@x.com"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyAccepted):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}

func TestStatusUpdatesAndAttach(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SetEmailStatus(ctx, inv.ID, domain.EmailStatusSent))
	require.NoError(t, svc.SetMetadataStatus(ctx, inv.ID, domain.MetadataStatusPending))
	require.NoError(t, svc.AttachAffiliate(ctx, inv.ID, snowflake.ID(42)))
	assert.ErrorIs(t, svc.SetEmailStatus(ctx, inv.ID, "bounced"), domain.ErrInvalidStatus)

	found, err := svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailStatusSent, found.EmailStatus)
	assert.Equal(t, domain.MetadataStatusPending, found.MetadataStatus)
	require.NotNil(t, found.AffiliateID)
	assert.Equal(t, snowflake.ID(42), *found.AffiliateID)
}

func TestListByDeal_Paginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, validRequest())
		require.NoError(t, err)
	}
	other := validRequest()
	other.DealName = "graph_other"
	_, err := svc.Create(ctx, other)
	require.NoError(t, err)

	first, err := svc.ListByDeal(ctx, domain.ListInvitationRequest{DealName: "graph_123", PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, first.Invitations, 2)
	assert.True(t, first.HasMore)

	second, err := svc.ListByDeal(ctx, domain.ListInvitationRequest{DealName: "graph_123", PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, second.Invitations, 1)
	assert.False(t, second.HasMore)
	assert.Less(t, int64(second.Invitations[0].ID), int64(first.Invitations[1].ID))

	_, err = svc.ListByDeal(ctx, domain.ListInvitationRequest{DealName: "graph_123", Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
