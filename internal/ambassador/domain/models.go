package domain

import (
	"time"

	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
)

type SendInvitationRequest struct {
	RecipientEmail   string  `json:"recipientEmail"`
	RecipientName    string  `json:"recipientName"`
	SenderName       string  `json:"senderName"`
	SiteName         string  `json:"siteName"`
	Domain           string  `json:"domain"`
	DealName         string  `json:"dealName"`
	CommissionType   string  `json:"commissionType"`
	CommissionRate   float64 `json:"commissionRate"`
	CommissionAmount float64 `json:"commissionAmount"`
}

type SendInvitationResponse struct {
	InvitationToken string    `json:"invitationToken"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

type AcceptInvitationRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// InvitationView is what a recipient sees before accepting.
type InvitationView struct {
	RecipientEmail   string                  `json:"recipientEmail"`
	RecipientName    string                  `json:"recipientName"`
	SenderName       string                  `json:"senderName"`
	SiteName         string                  `json:"siteName"`
	Domain           string                  `json:"domain"`
	DealName         string                  `json:"dealName"`
	CommissionType   string                  `json:"commissionType"`
	CommissionRate   float64                 `json:"commissionRate,omitempty"`
	CommissionAmount float64                 `json:"commissionAmount,omitempty"`
	Status           invitationdomain.Status `json:"status"`
	CreatedAt        time.Time               `json:"createdAt"`
	ExpiresAt        time.Time               `json:"expiresAt"`
}

func NewInvitationView(inv invitationdomain.Invitation, now time.Time) InvitationView {
	return InvitationView{
		RecipientEmail:   inv.RecipientEmail,
		RecipientName:    inv.RecipientName,
		SenderName:       inv.SenderName,
		SiteName:         inv.SiteName,
		Domain:           inv.Domain,
		DealName:         inv.DealName,
		CommissionType:   inv.CommissionType,
		CommissionRate:   inv.CommissionRate,
		CommissionAmount: inv.CommissionAmount,
		Status:           inv.EffectiveStatus(now),
		CreatedAt:        inv.CreatedAt,
		ExpiresAt:        inv.ExpiresAt,
	}
}

// GraphStatus is the ambassador badge of one graph.
type GraphStatus struct {
	HasAmbassadors bool  `json:"hasAmbassadors"`
	AffiliateCount int64 `json:"affiliateCount"`
}
