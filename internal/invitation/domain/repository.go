package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invitation *Invitation) error
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*Invitation, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invitation, error)
	// MarkAccepted flips a pending, unexpired invitation to accepted and returns
	// the number of rows changed.
	MarkAccepted(ctx context.Context, db *gorm.DB, token, email, name string, now time.Time) (int64, error)
	MarkExpired(ctx context.Context, db *gorm.DB, token string, now time.Time) error
	AttachAffiliate(ctx context.Context, db *gorm.DB, id, affiliateID snowflake.ID, now time.Time) error
	UpdateEmailStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status EmailStatus, now time.Time) error
	UpdateMetadataStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status MetadataStatus, now time.Time) error
	ListByDeal(ctx context.Context, db *gorm.DB, dealName string, filter ListInvitationFilter, page pagination.Pagination) ([]*Invitation, error)
}
