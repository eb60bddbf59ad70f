package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/affiliate/domain"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	dbpkg "github.com/smallbiznis/ambassador/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	clock       clock.Clock
	policy      *config.PolicyHolder
	newReferral func(name, email string, length int) (string, error)
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("affiliate.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		clock:       p.Clock,
		policy:      p.Policy,
		newReferral: NewReferralCode,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (domain.Affiliate, bool, error) {
	email := invitationdomain.NormalizeEmail(req.Email)
	if email == "" {
		return domain.Affiliate{}, false, domain.ErrInvalidEmail
	}
	dealName := strings.TrimSpace(req.DealName)
	if dealName == "" {
		return domain.Affiliate{}, false, domain.ErrInvalidDealName
	}
	terms, err := validateTerms(req.Terms)
	if err != nil {
		return domain.Affiliate{}, false, err
	}

	existing, err := s.repo.FindByEmailAndDeal(ctx, s.db, email, dealName)
	if err != nil {
		return domain.Affiliate{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	policy := s.policy.Get()
	now := s.clock.Now()
	affiliate := domain.Affiliate{
		ID:               s.genID.Generate(),
		Email:            email,
		Name:             strings.TrimSpace(req.Name),
		DealName:         dealName,
		CommissionType:   terms.CommissionType,
		CommissionRate:   terms.CommissionRate,
		CommissionAmount: terms.CommissionAmount,
		Status:           domain.StatusActive,
		Domain:           strings.ToLower(strings.TrimSpace(req.Domain)),
		InvitationID:     req.InvitationID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for attempt := 1; attempt <= policy.ReferralCodeMaxAttempts; attempt++ {
		code, err := s.newReferral(affiliate.Name, email, policy.ReferralCodeLength)
		if err != nil {
			return domain.Affiliate{}, false, fmt.Errorf("generate referral code: %w", err)
		}
		affiliate.ReferralCode = code

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.Insert(ctx, tx, &affiliate)
		})
		switch {
		case err == nil:
			return affiliate, true, nil
		case dbpkg.DuplicateKeyOn(err, "referral_code"):
			s.log.Warn("referral code collision, regenerating", zap.Int("attempt", attempt))
			continue
		case dbpkg.IsDuplicateKeyErr(err):
			// Lost a race with another insert for the same (email, deal).
			winner, findErr := s.repo.FindByEmailAndDeal(ctx, s.db, email, dealName)
			if findErr != nil {
				return domain.Affiliate{}, false, findErr
			}
			if winner == nil {
				return domain.Affiliate{}, false, err
			}
			return *winner, false, nil
		default:
			return domain.Affiliate{}, false, err
		}
	}
	return domain.Affiliate{}, false, domain.ErrReferralCodeExhausted
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Affiliate, error) {
	affiliateID, err := parseID(id)
	if err != nil {
		return domain.Affiliate{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, affiliateID)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if item == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *item, nil
}

// FindByEmail returns the most recent affiliate for email, or nil.
func (s *Service) FindByEmail(ctx context.Context, email string) (*domain.Affiliate, error) {
	items, err := s.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *Service) ListByEmail(ctx context.Context, email string) ([]domain.Affiliate, error) {
	normalized := invitationdomain.NormalizeEmail(email)
	if normalized == "" {
		return nil, domain.ErrInvalidEmail
	}
	items, err := s.repo.ListByEmail(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func (s *Service) FindByReferralCode(ctx context.Context, code string) (domain.Affiliate, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.Affiliate{}, domain.ErrInvalidReferralCode
	}
	item, err := s.repo.FindByReferralCode(ctx, s.db, code)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if item == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListByGraph(ctx context.Context, dealName string) ([]domain.Affiliate, error) {
	dealName = strings.TrimSpace(dealName)
	if dealName == "" {
		return nil, domain.ErrInvalidDealName
	}
	items, err := s.repo.ListByDeal(ctx, s.db, dealName)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

// CountByGraphs returns a count for every requested graph, zero included.
func (s *Service) CountByGraphs(ctx context.Context, dealNames []string) (map[string]int64, error) {
	unique := make([]string, 0, len(dealNames))
	seen := make(map[string]struct{}, len(dealNames))
	for _, name := range dealNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}

	counts, err := s.repo.CountByDeals(ctx, s.db, unique)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(unique))
	for _, name := range unique {
		out[name] = counts[name]
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id string, update domain.AffiliateUpdate) (domain.Affiliate, error) {
	affiliateID, err := parseID(id)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if update.Empty() {
		return domain.Affiliate{}, domain.ErrEmptyUpdate
	}

	current, err := s.repo.FindByID(ctx, s.db, affiliateID)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if current == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}

	columns, err := updateColumns(*current, update)
	if err != nil {
		return domain.Affiliate{}, err
	}
	columns["updated_at"] = s.clock.Now()

	if _, err := s.repo.Update(ctx, s.db, affiliateID, columns); err != nil {
		return domain.Affiliate{}, err
	}

	updated, err := s.repo.FindByID(ctx, s.db, affiliateID)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if updated == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *updated, nil
}

// updateColumns maps the allowed fields onto column names and checks that the
// resulting commission terms are still coherent.
func updateColumns(current domain.Affiliate, update domain.AffiliateUpdate) (map[string]any, error) {
	columns := make(map[string]any)

	if update.Status != nil {
		switch *update.Status {
		case domain.StatusActive, domain.StatusPaused:
			columns["status"] = *update.Status
		default:
			return nil, domain.ErrInvalidStatus
		}
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		columns["name"] = name
	}

	if update.CommissionType == nil && update.CommissionRate == nil && update.CommissionAmount == nil {
		return columns, nil
	}

	terms := domain.Terms{
		CommissionType:   current.CommissionType,
		CommissionRate:   current.CommissionRate,
		CommissionAmount: current.CommissionAmount,
	}
	if update.CommissionType != nil {
		terms.CommissionType = *update.CommissionType
	}
	if update.CommissionRate != nil {
		terms.CommissionRate = *update.CommissionRate
	}
	if update.CommissionAmount != nil {
		terms.CommissionAmount = *update.CommissionAmount
	}
	terms, err := validateTerms(terms)
	if err != nil {
		return nil, err
	}
	columns["commission_type"] = terms.CommissionType
	columns["commission_rate"] = terms.CommissionRate
	columns["commission_amount"] = terms.CommissionAmount
	return columns, nil
}

// validateTerms normalizes the commission type and zeroes the value that does
// not apply to it.
func validateTerms(terms domain.Terms) (domain.Terms, error) {
	kind, err := invitationdomain.ValidateCommission(terms.CommissionType, terms.CommissionRate, terms.CommissionAmount)
	if err != nil {
		return domain.Terms{}, err
	}
	terms.CommissionType = kind
	switch kind {
	case invitationdomain.CommissionPercentage:
		terms.CommissionAmount = 0
	case invitationdomain.CommissionFixed:
		terms.CommissionRate = 0
	}
	return terms, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func flatten(items []*domain.Affiliate) []domain.Affiliate {
	out := make([]domain.Affiliate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}

var _ domain.Service = (*Service)(nil)
