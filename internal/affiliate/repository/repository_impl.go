package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/affiliate/domain"
	"gorm.io/gorm"
)

const affiliateColumns = `id, email, name, referral_code, deal_name, commission_type, commission_rate,
	commission_amount, status, domain, invitation_id, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *domain.Affiliate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO affiliates (id, email, name, referral_code, deal_name, commission_type,
			commission_rate, commission_amount, status, domain, invitation_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Email,
		a.Name,
		a.ReferralCode,
		a.DealName,
		a.CommissionType,
		a.CommissionRate,
		a.CommissionAmount,
		a.Status,
		a.Domain,
		a.InvitationID,
		a.CreatedAt,
		a.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByEmailAndDeal(ctx context.Context, db *gorm.DB, email, dealName string) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `email = ? AND deal_name = ?`, email, dealName)
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `referral_code = ?`, code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	err := db.WithContext(ctx).Raw(
		`SELECT `+affiliateColumns+` FROM affiliates WHERE `+where,
		args...,
	).Scan(&affiliate).Error
	if err != nil {
		return nil, err
	}
	if affiliate.ID == 0 {
		return nil, nil
	}
	return &affiliate, nil
}

func (r *repo) ListByEmail(ctx context.Context, db *gorm.DB, email string) ([]*domain.Affiliate, error) {
	var items []*domain.Affiliate
	err := db.WithContext(ctx).Raw(
		`SELECT `+affiliateColumns+` FROM affiliates WHERE email = ? ORDER BY created_at DESC, id DESC`,
		email,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByDeal(ctx context.Context, db *gorm.DB, dealName string) ([]*domain.Affiliate, error) {
	var items []*domain.Affiliate
	err := db.WithContext(ctx).Raw(
		`SELECT `+affiliateColumns+` FROM affiliates WHERE deal_name = ? ORDER BY created_at ASC, id ASC`,
		dealName,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

type dealCount struct {
	DealName string
	Total    int64
}

func (r *repo) CountByDeals(ctx context.Context, db *gorm.DB, dealNames []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(dealNames))
	if len(dealNames) == 0 {
		return counts, nil
	}

	var rows []dealCount
	err := db.WithContext(ctx).Raw(
		`SELECT deal_name, COUNT(*) AS total FROM affiliates WHERE deal_name IN ? GROUP BY deal_name`,
		dealNames,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.DealName] = row.Total
	}
	return counts, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, columns map[string]any) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		Updates(columns)
	return res.RowsAffected, res.Error
}
