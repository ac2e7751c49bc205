package server

import (
	"context"
	"net/http"
	"time"

	auditdomain "github.com/bitbonsai/license-server/internal/audit/domain"
	"github.com/bitbonsai/license-server/internal/config"
	donationdomain "github.com/bitbonsai/license-server/internal/donation/domain"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bitbonsai/license-server/internal/metrics"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"github.com/bitbonsai/license-server/internal/providers/payment"
	"github.com/bitbonsai/license-server/internal/ratelimit"
	webhookdomain "github.com/bitbonsai/license-server/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	return NewEngine(log, m)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	db          *gorm.DB
	licenseSvc  licensedomain.Service
	pricingSvc  pricingdomain.Service
	webhookSvc  webhookdomain.Service
	donationSvc donationdomain.Service
	auditSvc    auditdomain.Service
	adapters    *payment.Registry
	limiter     *ratelimit.PublicLimiter
	metrics     *metrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	LicenseSvc  licensedomain.Service
	PricingSvc  pricingdomain.Service
	WebhookSvc  webhookdomain.Service
	DonationSvc donationdomain.Service
	AuditSvc    auditdomain.Service
	Adapters    *payment.Registry
	Limiter     *ratelimit.PublicLimiter `optional:"true"`
	Metrics     *metrics.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		db:          p.DB,
		licenseSvc:  p.LicenseSvc,
		pricingSvc:  p.PricingSvc,
		webhookSvc:  p.WebhookSvc,
		donationSvc: p.DonationSvc,
		auditSvc:    p.AuditSvc,
		adapters:    p.Adapters,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
	}

	svc.registerPublicRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.POST("/license/verify", s.VerifyRateLimit(), s.VerifyLicense)
	api.GET("/license/public-key", s.GetPublicKey)
	api.GET("/pricing/tiers", s.ListPublicPricingTiers)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.WebhookRateLimit(), s.HandleProviderWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminAuthRequired())

	// -------- Licenses --------
	admin.GET("/licenses", s.ListLicenses)
	admin.POST("/licenses", s.CreateLicense)
	admin.GET("/licenses/:id", s.GetLicenseByID)
	admin.GET("/licenses/by-email/:email", s.ListLicensesByEmail)
	admin.POST("/licenses/:id/revoke", s.RevokeLicense)

	// -------- Pricing --------
	admin.GET("/pricing/tiers", s.ListPricingTiers)
	admin.POST("/pricing/tiers", s.CreatePricingTier)
	admin.PATCH("/pricing/tiers/:id", s.UpdatePricingTier)
	admin.POST("/pricing/tiers/:id/publish", s.PublishPricingTier)
	admin.POST("/pricing/tiers/:id/deactivate", s.DeactivatePricingTier)
	admin.POST("/pricing/tiers/:id/patreon", s.MapPatreonTier)

	// -------- Webhook ledger --------
	admin.GET("/webhook-events", s.ListWebhookEvents)
	admin.POST("/webhook-events/:id/replay", s.ReplayWebhookEvent)

	// -------- Donations --------
	admin.GET("/donations", s.ListDonations)

	// -------- Audit --------
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func requestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Webhook bodies can carry PII; log route shape only.
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
