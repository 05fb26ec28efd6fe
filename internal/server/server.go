package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/mealsub/internal/bundle"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/events"
	"github.com/smallbiznis/mealsub/internal/menu"
	"github.com/smallbiznis/mealsub/internal/observability"
	obsmiddleware "github.com/smallbiznis/mealsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/mealsub/internal/observability/tracing"
	"github.com/smallbiznis/mealsub/internal/payment"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
	"github.com/smallbiznis/mealsub/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"github.com/smallbiznis/mealsub/internal/sweeper"
	"github.com/smallbiznis/mealsub/internal/vendors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the HTTP server together with every domain service it serves.
var Module = fx.Module("http.server",
	observability.HTTPModule,
	events.Module,
	menu.Module,
	vendors.Module,
	subscription.Module,
	bundle.Module,
	payment.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
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

// RunHTTP binds the engine to cfg.HTTPAddr for the lifetime of the app.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
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
	engine          *gin.Engine
	log             *zap.Logger
	subscriptionSvc subscriptiondomain.Service
	bundleSvc       bundledomain.Service
	paymentSvc      paymentdomain.Service

	sweeper *sweeper.Sweeper
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	BundleSvc       bundledomain.Service
	PaymentSvc      paymentdomain.Service

	Sweeper *sweeper.Sweeper `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http"),
		subscriptionSvc: p.SubscriptionSvc,
		bundleSvc:       p.BundleSvc,
		paymentSvc:      p.PaymentSvc,
		sweeper:         p.Sweeper,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", UserRequired())

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.CreateSubscription)
	api.GET("/subscriptions", s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/cancel", s.CancelSubscription)

	// -------- Bundles --------
	api.POST("/bundles", s.CreateBundle)
	api.GET("/bundles/:id", s.GetBundleByID)
	api.POST("/bundles/:id/cancel", s.CancelBundle)

	// -------- Payments --------
	api.POST("/payments/charge", s.ChargePayment)
	api.POST("/payments/refund", s.RefundPayment)
	api.GET("/subscriptions/:id/payments", s.ListPayments)
	api.GET("/subscriptions/:id/payment-summary", s.GetPaymentSummary)
}

func (s *Server) registerAdminRoutes() {
	if s.sweeper == nil {
		return
	}
	admin := s.engine.Group("/admin")
	admin.POST("/sweeps", s.TriggerSweep)
}
