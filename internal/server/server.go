package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	settingsdomain "github.com/smallbiznis/bizdash/internal/companysettings/domain"
	"github.com/smallbiznis/bizdash/internal/config"
	entitlementservice "github.com/smallbiznis/bizdash/internal/entitlement/service"
	"github.com/smallbiznis/bizdash/internal/observability"
	obslogger "github.com/smallbiznis/bizdash/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bizdash/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bizdash/internal/observability/tracing"
	"github.com/smallbiznis/bizdash/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	Log         *zap.Logger
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(p.Log, obslogger.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{ErrorClassifier: classifyErrorForLog}))
	r.Use(p.HTTPMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	registry    *entitlementservice.Registry
	settingsSvc settingsdomain.Service
	limiter     *ratelimit.MutationLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Registry    *entitlementservice.Registry
	SettingsSvc settingsdomain.Service
	Limiter     *ratelimit.MutationLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		registry:    p.Registry,
		settingsSvc: p.SettingsSvc,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
	s.registerAPIRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", AccountRequired())

	// -------- Entitlements --------
	api.GET("/entitlements", s.GetEntitlements)

	// -------- Usage --------
	usage := api.Group("/usage", s.MutationRateLimit())
	usage.POST("/invoices", s.IncrementInvoiceUsage)
	usage.POST("/bills", s.IncrementBillUsage)
	usage.POST("/reset", s.ResetUsage)

	// -------- Plan --------
	api.PUT("/plan", s.MutationRateLimit(), s.ChangePlan)

	// -------- Company Settings --------
	api.GET("/settings", s.GetSettings)
	api.POST("/settings", s.UpdateSettings)
	api.PATCH("/settings/currency", s.SetCurrency)
	api.GET("/settings/format", s.FormatAmount)
}
