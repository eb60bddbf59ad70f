package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateInvitationRequest struct {
	RecipientEmail   string
	RecipientName    string
	SenderName       string
	SiteName         string
	Domain           string
	DealName         string
	CommissionType   string
	CommissionRate   float64
	CommissionAmount float64
}

type AcceptRequest struct {
	Token string
	Email string
	Name  string
}

type ListInvitationFilter struct {
	Status Status
}

type ListInvitationRequest struct {
	DealName  string
	Status    string
	PageToken string
	PageSize  int
}

type ListInvitationResponse struct {
	pagination.PageInfo
	Invitations []Invitation `json:"invitations"`
}

type Service interface {
	// WithTx returns a Service whose writes join tx.
	WithTx(tx *gorm.DB) Service

	Create(context.Context, CreateInvitationRequest) (Invitation, error)
	Lookup(ctx context.Context, token string) (Invitation, error)
	GetByID(ctx context.Context, id snowflake.ID) (Invitation, error)
	MarkAccepted(context.Context, AcceptRequest) (Invitation, error)
	// Expire persists the expired state of a pending invitation past its TTL.
	Expire(ctx context.Context, token string) error
	AttachAffiliate(ctx context.Context, invitationID, affiliateID snowflake.ID) error
	SetEmailStatus(ctx context.Context, id snowflake.ID, status EmailStatus) error
	SetMetadataStatus(ctx context.Context, id snowflake.ID, status MetadataStatus) error
	ListByDeal(context.Context, ListInvitationRequest) (ListInvitationResponse, error)
}

var (
	ErrInvalidEmail            = errors.New("invalid_email")
	ErrInvalidDealName         = errors.New("invalid_deal_name")
	ErrInvalidCommissionType   = errors.New("invalid_commission_type")
	ErrInvalidCommissionRate   = errors.New("invalid_commission_rate")
	ErrInvalidCommissionAmount = errors.New("invalid_commission_amount")
	ErrInvalidToken            = errors.New("invalid_token")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidID               = errors.New("invalid_id")
	ErrNotFound                = errors.New("invitation_not_found")
	ErrExpired                 = errors.New("invitation_expired")
	ErrAlreadyAccepted         = errors.New("invitation_already_accepted")
	ErrTokenExhausted          = errors.New("token_generation_exhausted")
)
