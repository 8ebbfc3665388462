// Package app assembles the checkout service: configuration, logging,
// session storage, the commerce backend client, the payment gateways, and
// the HTTP surface.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/adapter/backend"
	"github.com/tiffinbox/checkout/internal/module/checkout"
	"github.com/tiffinbox/checkout/internal/module/intent"
	"github.com/tiffinbox/checkout/internal/module/order"
	"github.com/tiffinbox/checkout/internal/module/payment"
	"github.com/tiffinbox/checkout/internal/module/payment/provider"
	"github.com/tiffinbox/checkout/internal/module/reconcile"
	"github.com/tiffinbox/checkout/internal/module/session"
	"github.com/tiffinbox/checkout/internal/module/wallet"
	"github.com/tiffinbox/checkout/internal/shared/cache"
	"github.com/tiffinbox/checkout/internal/shared/config"
	"github.com/tiffinbox/checkout/internal/shared/logger"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
	"github.com/tiffinbox/checkout/internal/shared/middleware"
)

// walletCacheTTL is short on purpose: the balance changes whenever an order
// reserves funds, and the preview tolerates a stale read for this long.
const walletCacheTTL = 30 * time.Second

// App is the assembled checkout service.
type App struct {
	cfg    *config.Config
	router *gin.Engine
	logger *zap.Logger
	redis  redis.UniversalClient
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	m := metrics.New("checkout")

	// Session storage. Redis keeps checkout state across restarts and
	// replicas; without it the service degrades to per-process memory.
	var (
		sessions    session.Store
		redisClient redis.UniversalClient
		walletCache *cache.JSONCache
	)
	if cfg.Redis.Address != "" {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, using in-memory session store", zap.Error(err))
		}
	}
	if redisClient != nil {
		sessions = session.NewRedisStore(redisClient, cfg.Session.TTL)
		walletCache = cache.NewJSONCache(redisClient, "checkout:wallet:", walletCacheTTL)
	} else {
		sessions = session.NewMemoryStore(cfg.Session.TTL)
	}

	backendClient := backend.NewClient(cfg.Backend, m, log)

	registry := payment.NewProviderRegistry(cfg.Gateway.Default)
	registry.Register(provider.NewRazorpayGateway(cfg.Gateway.Razorpay, &http.Client{Timeout: 10 * time.Second}, m, log))
	if cfg.Gateway.Stripe.SecretKey != "" {
		registry.Register(provider.NewStripeGateway(cfg.Gateway.Stripe, m, log))
	}

	intents := intent.NewStore(sessions, log)
	walletSvc := wallet.NewService(backendClient, walletCache, m, log)

	orch := checkout.NewOrchestrator(checkout.Deps{
		Lifecycles: payment.NewManager(sessions, log),
		Gateways:   registry,
		Orders:     order.NewService(backendClient, log),
		Intents:    intents,
		Wallet:     walletSvc,
		Reconciler: reconcile.New(backendClient, cfg.Reconcile, m, log),
		Sessions:   sessions,
		Routes:     checkout.NewRoutes(cfg.Storefront),
		Metrics:    m,
		Logger:     log,
	}, cfg.Reconcile)

	router := setupRouter(cfg, log, m)
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Auth.JWTSecret))
	checkout.NewHandler(orch, intents, walletSvc, registry, log).RegisterRoutes(api)

	return &App{cfg: cfg, router: router, logger: log, redis: redisClient}, nil
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop releases application resources.
func (a *App) Stop() {
	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// setupRouter creates the Gin router with the global middleware chain.
func setupRouter(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics(m))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
