package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

type Affiliate struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"affiliateId"`
	Email            string        `gorm:"not null;uniqueIndex:ux_affiliates_email_deal" json:"email"`
	Name             string        `gorm:"not null;default:''" json:"name"`
	ReferralCode     string        `gorm:"type:varchar(32);not null;uniqueIndex:ux_affiliates_referral_code" json:"referralCode"`
	DealName         string        `gorm:"not null;uniqueIndex:ux_affiliates_email_deal;index" json:"dealName"`
	CommissionType   string        `gorm:"type:varchar(16);not null" json:"commissionType"`
	CommissionRate   float64       `gorm:"not null;default:0" json:"commissionRate,omitempty"`
	CommissionAmount float64       `gorm:"not null;default:0" json:"commissionAmount,omitempty"`
	Status           Status        `gorm:"type:varchar(16);not null" json:"status"`
	Domain           string        `gorm:"not null;default:''" json:"domain,omitempty"`
	InvitationID     *snowflake.ID `json:"invitationId,omitempty"`
	CreatedAt        time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updatedAt"`
}

func (Affiliate) TableName() string { return "affiliates" }

// Terms are the commission terms an affiliate earns on its deal.
type Terms struct {
	CommissionType   string
	CommissionRate   float64
	CommissionAmount float64
}
