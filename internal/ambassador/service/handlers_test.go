package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
	"github.com/smallbiznis/ambassador/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailHandler_SendsAndMarksSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.send(t)
	tasks := f.claim(t)
	require.Len(t, tasks, 1)

	require.NoError(t, f.handlers.Email.Handle(ctx, tasks[0]))

	require.Len(t, f.email.sent, 1)
	sent := f.email.sent[0]
	assert.Equal(t, []string{"a@x.com"}, sent.to)
	assert.Equal(t, email.TemplateAffiliateInvitation, sent.template)
	assert.Equal(t, "https://www.vegvisr.org/affiliate-registration?token="+resp.InvitationToken, sent.data["accept_url"])
	assert.Equal(t, "15%", sent.data["commission"])
	assert.Equal(t, "8 March 2026", sent.data["expires_at"])

	inv, err := f.invitations.Lookup(ctx, resp.InvitationToken)
	require.NoError(t, err)
	assert.Equal(t, invitationdomain.EmailStatusSent, inv.EmailStatus)
}

func TestEmailHandler_SkipsAcceptedInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.send(t)
	tasks := f.claim(t)
	require.Len(t, tasks, 1)

	_, err := f.invitations.MarkAccepted(ctx, invitationdomain.AcceptRequest{Token: resp.InvitationToken, Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, f.handlers.Email.Handle(ctx, tasks[0]))
	assert.Empty(t, f.email.sent)
}

func TestEmailHandler_SkipsExpiredInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.send(t)

	f.clock.Advance(8 * 24 * time.Hour)
	tasks := f.claim(t)
	require.Len(t, tasks, 1)

	require.NoError(t, f.handlers.Email.Handle(ctx, tasks[0]))
	assert.Empty(t, f.email.sent)

	inv, err := f.invitations.Lookup(ctx, resp.InvitationToken)
	require.NoError(t, err)
	assert.Equal(t, invitationdomain.EmailStatusPending, inv.EmailStatus)
	assert.Equal(t, invitationdomain.StatusExpired, inv.EffectiveStatus(f.clock.Now()))
}

func TestEmailHandler_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.send(t)
	tasks := f.claim(t)
	require.Len(t, tasks, 1)

	f.email.err = errors.New("smtp down")
	err := f.handlers.Email.Handle(ctx, tasks[0])
	require.Error(t, err)
	assert.False(t, outboxdomain.IsPermanent(err))

	f.handlers.Email.Exhausted(ctx, tasks[0], err)
	inv, err := f.invitations.Lookup(ctx, resp.InvitationToken)
	require.NoError(t, err)
	assert.Equal(t, invitationdomain.EmailStatusFailed, inv.EmailStatus)

	missingID := snowflake.ID(7)
	orphan := outboxdomain.Task{
		Kind:         outboxdomain.KindInvitationEmail,
		InvitationID: &missingID,
		AggregateKey: "missing",
	}
	err = f.handlers.Email.Handle(ctx, orphan)
	assert.True(t, outboxdomain.IsPermanent(err))
	assert.ErrorIs(t, err, invitationdomain.ErrNotFound)
}

func TestHandlerKinds(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, outboxdomain.KindInvitationEmail, f.handlers.Email.Kind())
	assert.Equal(t, outboxdomain.KindGraphMetadataRefresh, f.handlers.Metadata.Kind())
}

func TestFormatCommission(t *testing.T) {
	assert.Equal(t, "12.5%", formatCommission(invitationdomain.Invitation{CommissionType: "percentage", CommissionRate: 12.5}))
	assert.Equal(t, "50.00", formatCommission(invitationdomain.Invitation{CommissionType: "fixed", CommissionAmount: 50}))
	assert.Equal(t, "https://x.org/a?ref=1&token=a%2Bb", acceptLink("https://x.org/a?ref=1", "a+b"))
}
