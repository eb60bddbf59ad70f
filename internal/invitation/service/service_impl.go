package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/invitation/domain"
	dbpkg "github.com/smallbiznis/ambassador/pkg/db"
	"github.com/smallbiznis/ambassador/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTokenLength = 64

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Policy *config.PolicyHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	policy   *config.PolicyHolder
	newToken func() (string, error)
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invitation.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		policy:   p.Policy,
		newToken: NewToken,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvitationRequest) (domain.Invitation, error) {
	email := domain.NormalizeEmail(req.RecipientEmail)
	if email == "" {
		return domain.Invitation{}, domain.ErrInvalidEmail
	}
	dealName := strings.TrimSpace(req.DealName)
	if dealName == "" {
		return domain.Invitation{}, domain.ErrInvalidDealName
	}
	commissionType, err := domain.ValidateCommission(req.CommissionType, req.CommissionRate, req.CommissionAmount)
	if err != nil {
		return domain.Invitation{}, err
	}

	policy := s.policy.Get()
	now := s.clock.Now()
	inv := domain.Invitation{
		ID:             s.genID.Generate(),
		RecipientEmail: email,
		RecipientName:  strings.TrimSpace(req.RecipientName),
		SenderName:     strings.TrimSpace(req.SenderName),
		SiteName:       strings.TrimSpace(req.SiteName),
		Domain:         strings.ToLower(strings.TrimSpace(req.Domain)),
		DealName:       dealName,
		CommissionType: commissionType,
		Status:         domain.StatusPending,
		EmailStatus:    domain.EmailStatusPending,
		MetadataStatus: domain.MetadataStatusNone,
		CreatedAt:      now,
		ExpiresAt:      now.Add(policy.InvitationTTL),
		UpdatedAt:      now,
	}
	switch commissionType {
	case domain.CommissionPercentage:
		inv.CommissionRate = req.CommissionRate
	case domain.CommissionFixed:
		inv.CommissionAmount = req.CommissionAmount
	}

	for attempt := 1; attempt <= policy.TokenMaxAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return domain.Invitation{}, fmt.Errorf("generate token: %w", err)
		}
		inv.Token = token

		// Savepoint per attempt so a collision does not abort an outer transaction.
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.Insert(ctx, tx, &inv)
		})
		if err == nil {
			return inv, nil
		}
		if !dbpkg.DuplicateKeyOn(err, "token") {
			return domain.Invitation{}, err
		}
		s.log.Warn("invitation token collision, regenerating",
			zap.Int("attempt", attempt),
			zap.String("deal_name", dealName),
		)
	}
	return domain.Invitation{}, domain.ErrTokenExhausted
}

func (s *Service) Lookup(ctx context.Context, token string) (domain.Invitation, error) {
	token, err := parseToken(token)
	if err != nil {
		return domain.Invitation{}, err
	}

	item, err := s.repo.FindByToken(ctx, s.db, token)
	if err != nil {
		return domain.Invitation{}, err
	}
	if item == nil {
		return domain.Invitation{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Invitation, error) {
	if id == 0 {
		return domain.Invitation{}, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Invitation{}, err
	}
	if item == nil {
		return domain.Invitation{}, domain.ErrNotFound
	}
	return *item, nil
}

// MarkAccepted consumes a pending invitation. Exactly one caller wins for a
// given token; the others observe ErrAlreadyAccepted or ErrExpired.
func (s *Service) MarkAccepted(ctx context.Context, req domain.AcceptRequest) (domain.Invitation, error) {
	token, err := parseToken(req.Token)
	if err != nil {
		return domain.Invitation{}, err
	}
	email := domain.NormalizeEmail(req.Email)
	if email == "" {
		return domain.Invitation{}, domain.ErrInvalidEmail
	}
	name := strings.TrimSpace(req.Name)

	now := s.clock.Now()
	affected, err := s.repo.MarkAccepted(ctx, s.db, token, email, name, now)
	if err != nil {
		return domain.Invitation{}, err
	}

	item, err := s.repo.FindByToken(ctx, s.db, token)
	if err != nil {
		return domain.Invitation{}, err
	}
	if item == nil {
		return domain.Invitation{}, domain.ErrNotFound
	}
	if affected == 1 {
		return *item, nil
	}

	switch item.EffectiveStatus(now) {
	case domain.StatusAccepted:
		return domain.Invitation{}, domain.ErrAlreadyAccepted
	case domain.StatusExpired:
		if item.Status == domain.StatusPending {
			if err := s.repo.MarkExpired(ctx, s.db, token, now); err != nil {
				s.log.Warn("failed to stamp expired invitation", zap.Error(err))
			}
		}
		return domain.Invitation{}, domain.ErrExpired
	default:
		return domain.Invitation{}, fmt.Errorf("invitation %s left in status %q after accept", item.ID, item.Status)
	}
}

func (s *Service) Expire(ctx context.Context, token string) error {
	token, err := parseToken(token)
	if err != nil {
		return err
	}
	return s.repo.MarkExpired(ctx, s.db, token, s.clock.Now())
}

func (s *Service) AttachAffiliate(ctx context.Context, invitationID, affiliateID snowflake.ID) error {
	if invitationID == 0 || affiliateID == 0 {
		return domain.ErrInvalidID
	}
	return s.repo.AttachAffiliate(ctx, s.db, invitationID, affiliateID, s.clock.Now())
}

func (s *Service) SetEmailStatus(ctx context.Context, id snowflake.ID, status domain.EmailStatus) error {
	switch status {
	case domain.EmailStatusPending, domain.EmailStatusSent, domain.EmailStatusFailed:
	default:
		return domain.ErrInvalidStatus
	}
	return s.repo.UpdateEmailStatus(ctx, s.db, id, status, s.clock.Now())
}

func (s *Service) SetMetadataStatus(ctx context.Context, id snowflake.ID, status domain.MetadataStatus) error {
	switch status {
	case domain.MetadataStatusNone, domain.MetadataStatusPending, domain.MetadataStatusSynced, domain.MetadataStatusFailed:
	default:
		return domain.ErrInvalidStatus
	}
	return s.repo.UpdateMetadataStatus(ctx, s.db, id, status, s.clock.Now())
}

func (s *Service) ListByDeal(ctx context.Context, req domain.ListInvitationRequest) (domain.ListInvitationResponse, error) {
	dealName := strings.TrimSpace(req.DealName)
	if dealName == "" {
		return domain.ListInvitationResponse{}, domain.ErrInvalidDealName
	}

	filter := domain.ListInvitationFilter{}
	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		switch domain.Status(status) {
		case domain.StatusPending, domain.StatusAccepted, domain.StatusExpired:
			filter.Status = domain.Status(status)
		default:
			return domain.ListInvitationResponse{}, domain.ErrInvalidStatus
		}
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.ListByDeal(ctx, s.db, dealName, filter, page)
	if err != nil {
		return domain.ListInvitationResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, page.Size(), func(inv *domain.Invitation) string {
		return inv.ID.String()
	})

	invitations := make([]domain.Invitation, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invitations = append(invitations, *item)
	}
	return domain.ListInvitationResponse{PageInfo: pageInfo, Invitations: invitations}, nil
}

func parseToken(raw string) (string, error) {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" || len(token) > maxTokenLength {
		return "", domain.ErrInvalidToken
	}
	return token, nil
}

var _ domain.Service = (*Service)(nil)
