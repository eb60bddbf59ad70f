package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/smallbiznis/ambassador/internal/ambassador/domain"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/graph"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	obslogger "github.com/smallbiznis/ambassador/internal/observability/logger"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
	"github.com/smallbiznis/ambassador/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type HandlerParams struct {
	fx.In

	Log         *zap.Logger
	Config      config.Config
	Clock       clock.Clock
	Invitations invitationdomain.Service
	Email       email.Provider
	Ambassador  domain.Service
}

type Handlers struct {
	fx.Out

	Email    outboxdomain.Handler `group:"outbox_handlers"`
	Metadata outboxdomain.Handler `group:"outbox_handlers"`
}

func NewHandlers(p HandlerParams) Handlers {
	return Handlers{
		Email: &EmailHandler{
			log:         p.Log.Named("ambassador.email"),
			clock:       p.Clock,
			invitations: p.Invitations,
			email:       p.Email,
			acceptURL:   p.Config.Email.AcceptURL,
		},
		Metadata: &MetadataHandler{
			log:         p.Log.Named("ambassador.metadata"),
			invitations: p.Invitations,
			ambassador:  p.Ambassador,
		},
	}
}

// EmailHandler delivers the invitation email for a pending invitation.
type EmailHandler struct {
	log         *zap.Logger
	clock       clock.Clock
	invitations invitationdomain.Service
	email       email.Provider
	acceptURL   string
}

func (h *EmailHandler) Kind() outboxdomain.Kind { return outboxdomain.KindInvitationEmail }

func (h *EmailHandler) Handle(ctx context.Context, task outboxdomain.Task) error {
	token := task.PayloadString("token")
	if token == "" {
		token = task.AggregateKey
	}
	inv, err := h.invitations.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, invitationdomain.ErrNotFound) || errors.Is(err, invitationdomain.ErrInvalidToken) {
			return outboxdomain.Permanent(err)
		}
		return err
	}

	log := obslogger.WithInvitation(obslogger.WithContext(ctx, h.log), inv.Token, inv.DealName)
	if status := inv.EffectiveStatus(h.clock.Now()); status != invitationdomain.StatusPending {
		log.Info("skipping invitation email", zap.String("status", string(status)))
		return nil
	}

	err = h.email.SendTemplate(ctx, []string{inv.RecipientEmail}, email.TemplateAffiliateInvitation, h.templateData(inv))
	if err != nil {
		if errors.Is(err, email.ErrNoRecipients) || errors.Is(err, email.ErrUnknownTemplate) {
			return outboxdomain.Permanent(err)
		}
		return err
	}

	if err := h.invitations.SetEmailStatus(ctx, inv.ID, invitationdomain.EmailStatusSent); err != nil {
		return err
	}
	log.Info("invitation email sent")
	return nil
}

func (h *EmailHandler) Exhausted(ctx context.Context, task outboxdomain.Task, cause error) {
	if task.InvitationID == nil {
		return
	}
	if err := h.invitations.SetEmailStatus(ctx, *task.InvitationID, invitationdomain.EmailStatusFailed); err != nil {
		obslogger.WithContext(ctx, h.log).Error("failed to mark invitation email failed",
			zap.String("invitation_id", task.InvitationID.String()),
			zap.Error(err),
		)
	}
}

func (h *EmailHandler) templateData(inv invitationdomain.Invitation) map[string]any {
	return map[string]any{
		"recipient_name": inv.RecipientName,
		"sender_name":    inv.SenderName,
		"site_name":      inv.SiteName,
		"domain":         inv.Domain,
		"commission":     formatCommission(inv),
		"accept_url":     acceptLink(h.acceptURL, inv.Token),
		"expires_at":     inv.ExpiresAt.Format("2 January 2006"),
	}
}

func acceptLink(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func formatCommission(inv invitationdomain.Invitation) string {
	switch inv.CommissionType {
	case "percentage":
		return strconv.FormatFloat(inv.CommissionRate, 'f', -1, 64) + "%"
	case "fixed":
		return strconv.FormatFloat(inv.CommissionAmount, 'f', 2, 64)
	}
	return ""
}

// MetadataHandler pushes the affiliate summary of a graph to the graph service.
type MetadataHandler struct {
	log         *zap.Logger
	invitations invitationdomain.Service
	ambassador  domain.Service
}

func (h *MetadataHandler) Kind() outboxdomain.Kind { return outboxdomain.KindGraphMetadataRefresh }

func (h *MetadataHandler) Handle(ctx context.Context, task outboxdomain.Task) error {
	dealName := task.PayloadString(payloadDealName)
	if dealName == "" {
		dealName = task.AggregateKey
	}

	_, err := h.ambassador.RefreshGraphMetadata(ctx, dealName)
	switch {
	case errors.Is(err, graph.ErrGraphNotFound), errors.Is(err, graph.ErrInvalidGraph), errors.Is(err, domain.ErrInvalidGraphID):
		return outboxdomain.Permanent(err)
	case err != nil:
		return err
	}

	if task.InvitationID != nil {
		return h.invitations.SetMetadataStatus(ctx, *task.InvitationID, invitationdomain.MetadataStatusSynced)
	}
	return nil
}

func (h *MetadataHandler) Exhausted(ctx context.Context, task outboxdomain.Task, cause error) {
	log := obslogger.WithContext(ctx, h.log)
	log.Warn("graph metadata refresh abandoned",
		zap.String("deal_name", task.AggregateKey),
		zap.Error(cause),
	)
	if task.InvitationID == nil {
		return
	}
	if err := h.invitations.SetMetadataStatus(ctx, *task.InvitationID, invitationdomain.MetadataStatusFailed); err != nil {
		log.Error("failed to mark metadata failed",
			zap.String("invitation_id", task.InvitationID.String()),
			zap.Error(err),
		)
	}
}
