package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	"gorm.io/gorm"
)

type UpsertRequest struct {
	Email        string
	Name         string
	DealName     string
	Domain       string
	Terms        Terms
	InvitationID *snowflake.ID
}

// AffiliateUpdate lists the fields an operator may change. Nil fields are left
// untouched.
type AffiliateUpdate struct {
	Status           *Status  `json:"status,omitempty"`
	CommissionType   *string  `json:"commissionType,omitempty"`
	CommissionRate   *float64 `json:"commissionRate,omitempty"`
	CommissionAmount *float64 `json:"commissionAmount,omitempty"`
	Name             *string  `json:"name,omitempty"`
}

func (u AffiliateUpdate) Empty() bool {
	return u.Status == nil && u.CommissionType == nil && u.CommissionRate == nil &&
		u.CommissionAmount == nil && u.Name == nil
}

type Service interface {
	WithTx(tx *gorm.DB) Service

	// Upsert returns the affiliate for (email, dealName), creating it when absent.
	// The boolean reports whether a new row was inserted.
	Upsert(context.Context, UpsertRequest) (Affiliate, bool, error)
	GetByID(ctx context.Context, id string) (Affiliate, error)
	FindByEmail(ctx context.Context, email string) (*Affiliate, error)
	ListByEmail(ctx context.Context, email string) ([]Affiliate, error)
	FindByReferralCode(ctx context.Context, code string) (Affiliate, error)
	ListByGraph(ctx context.Context, dealName string) ([]Affiliate, error)
	CountByGraphs(ctx context.Context, dealNames []string) (map[string]int64, error)
	Update(ctx context.Context, id string, update AffiliateUpdate) (Affiliate, error)
}

var (
	ErrInvalidEmail            = invitationdomain.ErrInvalidEmail
	ErrInvalidDealName         = errors.New("invalid_deal_name")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidName             = errors.New("invalid_name")
	ErrInvalidCommissionType   = invitationdomain.ErrInvalidCommissionType
	ErrInvalidCommissionRate   = invitationdomain.ErrInvalidCommissionRate
	ErrInvalidCommissionAmount = invitationdomain.ErrInvalidCommissionAmount
	ErrInvalidReferralCode     = errors.New("invalid_referral_code")
	ErrEmptyUpdate             = errors.New("empty_update")
	ErrNotFound                = errors.New("affiliate_not_found")
	ErrReferralCodeExhausted   = errors.New("referral_code_exhausted")
)
