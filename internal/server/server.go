package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/ambassador/internal/affiliate"
	affiliatedomain "github.com/smallbiznis/ambassador/internal/affiliate/domain"
	"github.com/smallbiznis/ambassador/internal/ambassador"
	ambassadordomain "github.com/smallbiznis/ambassador/internal/ambassador/domain"
	"github.com/smallbiznis/ambassador/internal/authorization"
	"github.com/smallbiznis/ambassador/internal/cache"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/graph"
	"github.com/smallbiznis/ambassador/internal/invitation"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	"github.com/smallbiznis/ambassador/internal/observability"
	obslogger "github.com/smallbiznis/ambassador/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ambassador/internal/observability/metrics"
	obstracing "github.com/smallbiznis/ambassador/internal/observability/tracing"
	"github.com/smallbiznis/ambassador/internal/outbox"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
	"github.com/smallbiznis/ambassador/internal/providers"
	"github.com/smallbiznis/ambassador/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Services is the domain stack shared by the API and worker binaries.
var Services = fx.Options(
	ratelimit.Module,
	cache.Module,
	graph.Module,
	providers.Module,
	invitation.Module,
	affiliate.Module,
	outbox.Module,
	ambassador.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

// Handler wraps the engine with CORS so preflight requests never reach gin.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Correlation-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	})(s.engine)
}

func run(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	addr := strings.TrimSpace(s.cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	ambassadorSvc ambassadordomain.Service
	invitationSvc invitationdomain.Service
	affiliateSvc  affiliatedomain.Service
	outboxSvc     outboxdomain.Service
	authzSvc      authorization.Service
	adminKeys     []adminKey
	limiter       *ratelimit.PublicLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	AmbassadorSvc ambassadordomain.Service
	InvitationSvc invitationdomain.Service
	AffiliateSvc  affiliatedomain.Service
	OutboxSvc     outboxdomain.Service
	AuthzSvc      authorization.Service
	Limiter       *ratelimit.PublicLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) (*Server, error) {
	keys, err := parseAdminKeys(p.Cfg.Admin.APIKeyHashes)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := p.AuthzSvc.AssignRole(key.subject, key.role); err != nil {
			return nil, err
		}
	}

	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		ambassadorSvc: p.AmbassadorSvc,
		invitationSvc: p.InvitationSvc,
		affiliateSvc:  p.AffiliateSvc,
		outboxSvc:     p.OutboxSvc,
		authzSvc:      p.AuthzSvc,
		adminKeys:     keys,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerPublicRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc, nil
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	r := s.engine

	r.POST("/send-affiliate-invitation", s.PublicRateLimit(), s.SendInvitation)
	r.GET("/validate-invitation", s.PublicRateLimit(), s.ValidateInvitation)
	r.POST("/complete-invitation-registration", s.PublicRateLimit(), s.CompleteInvitationRegistration)
	r.GET("/graph-ambassador-status", s.GraphAmbassadorStatus)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminKeyRequired())

	admin.GET("/graphs/:graphId/affiliates",
		s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateView), s.ListGraphAffiliates)
	admin.GET("/graphs/:graphId/invitations",
		s.authorizeAction(authorization.ObjectInvitation, authorization.ActionInvitationView), s.ListGraphInvitations)
	admin.POST("/graphs/:graphId/refresh-metadata",
		s.authorizeAction(authorization.ObjectGraph, authorization.ActionGraphRefreshMetadata), s.RefreshGraphMetadata)

	admin.GET("/affiliates",
		s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateView), s.FindAffiliates)
	admin.GET("/affiliates/:id",
		s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateView), s.GetAffiliate)
	admin.PATCH("/affiliates/:id",
		s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateUpdate), s.UpdateAffiliate)

	admin.POST("/invitations/:token/resend",
		s.authorizeAction(authorization.ObjectInvitation, authorization.ActionInvitationResend), s.ResendInvitation)

	admin.GET("/outbox/stats",
		s.authorizeAction(authorization.ObjectOutbox, authorization.ActionOutboxRetry), s.OutboxStats)
	admin.POST("/outbox/:id/retry",
		s.authorizeAction(authorization.ObjectOutbox, authorization.ActionOutboxRetry), s.RetryOutboxTask)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
