package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
)

type EmailStatus string

const (
	EmailStatusPending EmailStatus = "pending"
	EmailStatusSent    EmailStatus = "sent"
	EmailStatusFailed  EmailStatus = "failed"
)

type MetadataStatus string

const (
	MetadataStatusNone    MetadataStatus = "none"
	MetadataStatusPending MetadataStatus = "pending"
	MetadataStatusSynced  MetadataStatus = "synced"
	MetadataStatusFailed  MetadataStatus = "failed"
)

const (
	CommissionPercentage = "percentage"
	CommissionFixed      = "fixed"
)

type Invitation struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	Token            string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"token"`
	RecipientEmail   string         `gorm:"not null" json:"recipientEmail"`
	RecipientName    string         `gorm:"not null;default:''" json:"recipientName"`
	SenderName       string         `gorm:"not null;default:''" json:"senderName"`
	SiteName         string         `gorm:"not null;default:''" json:"siteName"`
	Domain           string         `gorm:"not null;default:''" json:"domain"`
	DealName         string         `gorm:"not null;index" json:"dealName"`
	CommissionType   string         `gorm:"type:varchar(16);not null" json:"commissionType"`
	CommissionRate   float64        `gorm:"not null;default:0" json:"commissionRate,omitempty"`
	CommissionAmount float64        `gorm:"not null;default:0" json:"commissionAmount,omitempty"`
	Status           Status         `gorm:"type:varchar(16);not null" json:"status"`
	EmailStatus      EmailStatus    `gorm:"type:varchar(16);not null" json:"emailStatus"`
	MetadataStatus   MetadataStatus `gorm:"type:varchar(16);not null" json:"metadataStatus"`
	AcceptedEmail    *string        `json:"acceptedEmail,omitempty"`
	AcceptedName     *string        `json:"acceptedName,omitempty"`
	AcceptedAt       *time.Time     `json:"acceptedAt,omitempty"`
	AffiliateID      *snowflake.ID  `json:"affiliateId,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"createdAt"`
	ExpiresAt        time.Time      `gorm:"not null" json:"expiresAt"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updatedAt"`
}

func (Invitation) TableName() string { return "affiliate_invitations" }

// EffectiveStatus reports expired for a pending invitation past its TTL.
func (i Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && !now.Before(i.ExpiresAt) {
		return StatusExpired
	}
	return i.Status
}
