package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/invitation/domain"
	"github.com/smallbiznis/ambassador/pkg/db/pagination"
	"gorm.io/gorm"
)

const invitationColumns = `id, token, recipient_email, recipient_name, sender_name, site_name, domain,
	deal_name, commission_type, commission_rate, commission_amount, status, email_status,
	metadata_status, accepted_email, accepted_name, accepted_at, affiliate_id,
	created_at, expires_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invitation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO affiliate_invitations (id, token, recipient_email, recipient_name, sender_name,
			site_name, domain, deal_name, commission_type, commission_rate, commission_amount,
			status, email_status, metadata_status, created_at, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.Token,
		inv.RecipientEmail,
		inv.RecipientName,
		inv.SenderName,
		inv.SiteName,
		inv.Domain,
		inv.DealName,
		inv.CommissionType,
		inv.CommissionRate,
		inv.CommissionAmount,
		inv.Status,
		inv.EmailStatus,
		inv.MetadataStatus,
		inv.CreatedAt,
		inv.ExpiresAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := db.WithContext(ctx).Raw(
		`SELECT `+invitationColumns+` FROM affiliate_invitations WHERE token = ?`,
		token,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := db.WithContext(ctx).Raw(
		`SELECT `+invitationColumns+` FROM affiliate_invitations WHERE id = ?`,
		id,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) MarkAccepted(ctx context.Context, db *gorm.DB, token, email, name string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE affiliate_invitations
		 SET status = ?, accepted_email = ?, accepted_name = ?, accepted_at = ?, updated_at = ?
		 WHERE token = ? AND status = ? AND expires_at > ?`,
		domain.StatusAccepted,
		email,
		name,
		now,
		now,
		token,
		domain.StatusPending,
		now,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, token string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE affiliate_invitations SET status = ?, updated_at = ?
		 WHERE token = ? AND status = ? AND expires_at <= ?`,
		domain.StatusExpired,
		now,
		token,
		domain.StatusPending,
		now,
	).Error
}

func (r *repo) AttachAffiliate(ctx context.Context, db *gorm.DB, id, affiliateID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE affiliate_invitations SET affiliate_id = ?, updated_at = ? WHERE id = ?`,
		affiliateID,
		now,
		id,
	).Error
}

func (r *repo) UpdateEmailStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.EmailStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE affiliate_invitations SET email_status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) UpdateMetadataStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.MetadataStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE affiliate_invitations SET metadata_status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) ListByDeal(ctx context.Context, db *gorm.DB, dealName string, filter domain.ListInvitationFilter, page pagination.Pagination) ([]*domain.Invitation, error) {
	var items []*domain.Invitation
	stmt := db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("deal_name = ?", dealName)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
