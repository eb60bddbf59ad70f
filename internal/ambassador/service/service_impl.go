package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/ambassador/internal/affiliate/domain"
	"github.com/smallbiznis/ambassador/internal/ambassador/domain"
	"github.com/smallbiznis/ambassador/internal/cache"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/graph"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	obslogger "github.com/smallbiznis/ambassador/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ambassador/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const payloadDealName = "dealName"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Invitations invitationdomain.Service
	Affiliates  affiliatedomain.Service
	Outbox      outboxdomain.Service
	Graph       graph.Client
	Cache       cache.StatusCache
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	policy      *config.PolicyHolder
	invitations invitationdomain.Service
	affiliates  affiliatedomain.Service
	outbox      outboxdomain.Service
	graph       graph.Client
	cache       cache.StatusCache
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ambassador.service"),
		clock:       p.Clock,
		policy:      p.Policy,
		invitations: p.Invitations,
		affiliates:  p.Affiliates,
		outbox:      p.Outbox,
		graph:       p.Graph,
		cache:       p.Cache,
		metrics:     p.Metrics,
	}
}

func (s *Service) SendInvitation(ctx context.Context, req domain.SendInvitationRequest) (domain.SendInvitationResponse, error) {
	dealName := strings.TrimSpace(req.DealName)
	if dealName == "" {
		return domain.SendInvitationResponse{}, domain.ErrMissingDealName
	}
	if invitationdomain.NormalizeEmail(req.RecipientEmail) == "" {
		return domain.SendInvitationResponse{}, invitationdomain.ErrInvalidEmail
	}
	if _, err := invitationdomain.ValidateCommission(req.CommissionType, req.CommissionRate, req.CommissionAmount); err != nil {
		return domain.SendInvitationResponse{}, err
	}

	// The graph must exist before anything is written.
	exists, err := s.graph.Exists(ctx, dealName)
	if err != nil {
		if errors.Is(err, graph.ErrInvalidGraph) {
			return domain.SendInvitationResponse{}, invitationdomain.ErrInvalidDealName
		}
		return domain.SendInvitationResponse{}, err
	}
	if !exists {
		return domain.SendInvitationResponse{}, invitationdomain.ErrInvalidDealName
	}

	var inv invitationdomain.Invitation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.invitations.WithTx(tx).Create(ctx, invitationdomain.CreateInvitationRequest{
			RecipientEmail:   req.RecipientEmail,
			RecipientName:    req.RecipientName,
			SenderName:       req.SenderName,
			SiteName:         req.SiteName,
			Domain:           req.Domain,
			DealName:         dealName,
			CommissionType:   req.CommissionType,
			CommissionRate:   req.CommissionRate,
			CommissionAmount: req.CommissionAmount,
		})
		if err != nil {
			return err
		}
		inv = created

		_, err = s.outbox.WithTx(tx).Enqueue(ctx, emailTask(created))
		return err
	})
	if err != nil {
		return domain.SendInvitationResponse{}, err
	}

	s.metrics.RecordInvitationSent(ctx, inv.CommissionType)
	obslogger.WithInvitation(s.logger(ctx), inv.Token, inv.DealName).Info("invitation created",
		zap.String("invitation_id", inv.ID.String()),
		zap.Time("expires_at", inv.ExpiresAt),
	)
	return domain.SendInvitationResponse{InvitationToken: inv.Token, ExpiresAt: inv.ExpiresAt}, nil
}

func (s *Service) ValidateInvitation(ctx context.Context, token string) (domain.InvitationView, error) {
	inv, err := s.invitations.Lookup(ctx, token)
	if err != nil {
		return domain.InvitationView{}, err
	}

	now := s.clock.Now()
	switch inv.EffectiveStatus(now) {
	case invitationdomain.StatusExpired:
		return domain.InvitationView{}, invitationdomain.ErrExpired
	case invitationdomain.StatusAccepted:
		return domain.InvitationView{}, invitationdomain.ErrAlreadyAccepted
	}
	return domain.NewInvitationView(inv, now), nil
}

// AcceptInvitation consumes the invitation and registers the affiliate in one
// transaction. The graph metadata refresh is queued in the same transaction
// and delivered later, so its failure never fails the accept.
func (s *Service) AcceptInvitation(ctx context.Context, req domain.AcceptInvitationRequest) (affiliatedomain.Affiliate, error) {
	email := invitationdomain.NormalizeEmail(req.Email)
	if email == "" {
		return affiliatedomain.Affiliate{}, invitationdomain.ErrInvalidEmail
	}

	current, err := s.invitations.Lookup(ctx, req.Token)
	if err != nil {
		return affiliatedomain.Affiliate{}, err
	}
	log := obslogger.WithInvitation(s.logger(ctx), current.Token, current.DealName)

	switch current.EffectiveStatus(s.clock.Now()) {
	case invitationdomain.StatusAccepted:
		s.metrics.RecordInvitationAccepted(ctx, "conflict")
		return affiliatedomain.Affiliate{}, invitationdomain.ErrAlreadyAccepted
	case invitationdomain.StatusExpired:
		if err := s.invitations.Expire(ctx, current.Token); err != nil {
			log.Warn("failed to stamp expired invitation", zap.Error(err))
		}
		s.metrics.RecordInvitationAccepted(ctx, "expired")
		return affiliatedomain.Affiliate{}, invitationdomain.ErrExpired
	}

	if email != current.RecipientEmail {
		if s.policy.Get().RequireEmailMatch {
			s.metrics.RecordInvitationAccepted(ctx, "email_mismatch")
			return affiliatedomain.Affiliate{}, domain.ErrEmailMismatch
		}
		log.Warn("invitation accepted with a different email than it was sent to")
	}

	var (
		affiliate affiliatedomain.Affiliate
		created   bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invitations := s.invitations.WithTx(tx)
		inv, err := invitations.MarkAccepted(ctx, invitationdomain.AcceptRequest{
			Token: current.Token,
			Email: email,
			Name:  req.Name,
		})
		if err != nil {
			return err
		}

		invitationID := inv.ID
		affiliate, created, err = s.affiliates.WithTx(tx).Upsert(ctx, affiliatedomain.UpsertRequest{
			Email:    email,
			Name:     strings.TrimSpace(req.Name),
			DealName: inv.DealName,
			Domain:   inv.Domain,
			Terms: affiliatedomain.Terms{
				CommissionType:   inv.CommissionType,
				CommissionRate:   inv.CommissionRate,
				CommissionAmount: inv.CommissionAmount,
			},
			InvitationID: &invitationID,
		})
		if err != nil {
			return err
		}

		if err := invitations.AttachAffiliate(ctx, inv.ID, affiliate.ID); err != nil {
			return err
		}
		if _, err := s.outbox.WithTx(tx).Enqueue(ctx, metadataTask(inv.DealName, &invitationID)); err != nil {
			return err
		}
		return invitations.SetMetadataStatus(ctx, inv.ID, invitationdomain.MetadataStatusPending)
	})
	if err != nil {
		switch {
		case errors.Is(err, invitationdomain.ErrAlreadyAccepted):
			s.metrics.RecordInvitationAccepted(ctx, "conflict")
		case errors.Is(err, invitationdomain.ErrExpired):
			// the stamp written inside the transaction was rolled back with it
			if err := s.invitations.Expire(ctx, current.Token); err != nil {
				log.Warn("failed to stamp expired invitation", zap.Error(err))
			}
			s.metrics.RecordInvitationAccepted(ctx, "expired")
		}
		return affiliatedomain.Affiliate{}, err
	}

	s.invalidate(ctx, affiliate.DealName)
	if created {
		s.metrics.RecordAffiliateCreated(ctx)
	}
	s.metrics.RecordInvitationAccepted(ctx, "accepted")
	log.Info("invitation accepted",
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.Bool("affiliate_created", created),
	)
	return affiliate, nil
}

func (s *Service) GraphAmbassadorStatus(ctx context.Context, graphIDs []string) (map[string]domain.GraphStatus, error) {
	ids := normalizeGraphIDs(graphIDs)
	if len(ids) == 0 {
		return nil, domain.ErrInvalidGraphIDs
	}
	policy := s.policy.Get()
	if len(ids) > policy.MaxStatusGraphIDs {
		return nil, domain.ErrTooManyGraphIDs
	}

	counts, err := s.cache.GetMany(ctx, ids)
	if err != nil {
		s.logger(ctx).Warn("status cache read failed", zap.Error(err))
		counts = map[string]int64{}
	}

	misses := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := counts[id]; !ok {
			misses = append(misses, id)
		}
	}

	if len(misses) > 0 {
		fresh, err := s.affiliates.CountByGraphs(ctx, misses)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetMany(ctx, fresh, policy.StatusCacheTTL); err != nil {
			s.logger(ctx).Warn("status cache write failed", zap.Error(err))
		}
		for id, count := range fresh {
			counts[id] = count
		}
	}

	out := make(map[string]domain.GraphStatus, len(ids))
	for _, id := range ids {
		count := counts[id]
		out[id] = domain.GraphStatus{HasAmbassadors: count > 0, AffiliateCount: count}
	}
	return out, nil
}

// RefreshGraphMetadata recomputes the affiliate summary of a graph from the
// registry and writes it to the graph service.
func (s *Service) RefreshGraphMetadata(ctx context.Context, graphID string) (graph.AffiliateMetadata, error) {
	graphID = strings.TrimSpace(graphID)
	if graphID == "" {
		return graph.AffiliateMetadata{}, domain.ErrInvalidGraphID
	}

	counts, err := s.affiliates.CountByGraphs(ctx, []string{graphID})
	if err != nil {
		return graph.AffiliateMetadata{}, err
	}
	count := counts[graphID]
	meta := graph.AffiliateMetadata{
		HasAffiliates:  count > 0,
		AffiliateCount: count,
		LastUpdated:    s.clock.Now(),
	}
	if err := s.graph.SaveAffiliateMetadata(ctx, graphID, meta); err != nil {
		return graph.AffiliateMetadata{}, err
	}

	s.invalidate(ctx, graphID)
	s.logger(ctx).Info("graph metadata refreshed",
		zap.String("deal_name", graphID),
		zap.Int64("affiliate_count", count),
	)
	return meta, nil
}

func (s *Service) EnqueueMetadataRefresh(ctx context.Context, graphID string) (outboxdomain.Task, error) {
	graphID = strings.TrimSpace(graphID)
	if graphID == "" {
		return outboxdomain.Task{}, domain.ErrInvalidGraphID
	}
	return s.outbox.Enqueue(ctx, metadataTask(graphID, nil))
}

func (s *Service) ResendInvitationEmail(ctx context.Context, token string) (outboxdomain.Task, error) {
	inv, err := s.invitations.Lookup(ctx, token)
	if err != nil {
		return outboxdomain.Task{}, err
	}
	switch inv.EffectiveStatus(s.clock.Now()) {
	case invitationdomain.StatusExpired:
		return outboxdomain.Task{}, invitationdomain.ErrExpired
	case invitationdomain.StatusAccepted:
		return outboxdomain.Task{}, invitationdomain.ErrAlreadyAccepted
	}

	var task outboxdomain.Task
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.invitations.WithTx(tx).SetEmailStatus(ctx, inv.ID, invitationdomain.EmailStatusPending); err != nil {
			return err
		}
		task, err = s.outbox.WithTx(tx).Enqueue(ctx, emailTask(inv))
		return err
	})
	if err != nil {
		return outboxdomain.Task{}, err
	}
	obslogger.WithInvitation(s.logger(ctx), inv.Token, inv.DealName).Info("invitation email re-queued",
		zap.String("task_id", task.ID.String()),
	)
	return task, nil
}

func (s *Service) invalidate(ctx context.Context, graphID string) {
	if err := s.cache.Invalidate(ctx, graphID); err != nil {
		s.logger(ctx).Warn("status cache invalidation failed",
			zap.String("deal_name", graphID),
			zap.Error(err),
		)
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func emailTask(inv invitationdomain.Invitation) outboxdomain.EnqueueRequest {
	id := inv.ID
	return outboxdomain.EnqueueRequest{
		Kind:         outboxdomain.KindInvitationEmail,
		InvitationID: &id,
		AggregateKey: inv.Token,
		Payload:      map[string]any{"token": inv.Token},
	}
}

func metadataTask(graphID string, invitationID *snowflake.ID) outboxdomain.EnqueueRequest {
	return outboxdomain.EnqueueRequest{
		Kind:         outboxdomain.KindGraphMetadataRefresh,
		InvitationID: invitationID,
		AggregateKey: graphID,
		Payload:      map[string]any{payloadDealName: graphID},
	}
}

func normalizeGraphIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			id := strings.TrimSpace(part)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

var _ domain.Service = (*Service)(nil)
