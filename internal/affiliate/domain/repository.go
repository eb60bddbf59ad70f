package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, affiliate *Affiliate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Affiliate, error)
	FindByEmailAndDeal(ctx context.Context, db *gorm.DB, email, dealName string) (*Affiliate, error)
	FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*Affiliate, error)
	ListByEmail(ctx context.Context, db *gorm.DB, email string) ([]*Affiliate, error)
	ListByDeal(ctx context.Context, db *gorm.DB, dealName string) ([]*Affiliate, error)
	CountByDeals(ctx context.Context, db *gorm.DB, dealNames []string) (map[string]int64, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, columns map[string]any) (int64, error)
}
