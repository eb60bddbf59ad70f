package domain

import (
	"context"
	"errors"

	affiliatedomain "github.com/smallbiznis/ambassador/internal/affiliate/domain"
	"github.com/smallbiznis/ambassador/internal/graph"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
)

// Service runs the invitation workflow: send, validate, accept, and the
// graph metadata propagation that follows an accept.
type Service interface {
	SendInvitation(context.Context, SendInvitationRequest) (SendInvitationResponse, error)
	ValidateInvitation(ctx context.Context, token string) (InvitationView, error)
	AcceptInvitation(context.Context, AcceptInvitationRequest) (affiliatedomain.Affiliate, error)
	GraphAmbassadorStatus(ctx context.Context, graphIDs []string) (map[string]GraphStatus, error)

	RefreshGraphMetadata(ctx context.Context, graphID string) (graph.AffiliateMetadata, error)
	// EnqueueMetadataRefresh schedules a refresh without an owning invitation.
	EnqueueMetadataRefresh(ctx context.Context, graphID string) (outboxdomain.Task, error)
	ResendInvitationEmail(ctx context.Context, token string) (outboxdomain.Task, error)
}

var (
	ErrEmailMismatch    = errors.New("email_mismatch")
	ErrInvalidGraphIDs  = errors.New("invalid_graph_ids")
	ErrTooManyGraphIDs  = errors.New("too_many_graph_ids")
	ErrInvalidGraphID   = errors.New("invalid_graph_id")
	ErrMissingDealName  = errors.New("missing_deal_name")
)
