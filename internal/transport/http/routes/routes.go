package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/config"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/transport/http/handlers"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/transport/http/middleware"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Trust    *usecase.TrustService
	Pins     *usecase.PinService
	Sessions *usecase.SessionService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(deps.Config.App.Name))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	identityMiddleware := middleware.RequireIdentity(deps.Config.Identity)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Trust, deps.Services.Pins, deps.Services.Sessions, deps.Config.Policy.ResolveTimeout)

		authGroup := api.Group("/auth")
		authGroup.Use(identityMiddleware)

		resolveMiddlewares := buildRateLimitMiddlewares(deps, "auth_state", deps.Config.RateLimit.ResolveMaxAttempts)
		authGroup.GET("/state", withHandler(resolveMiddlewares, authHandler.ResolveState)...)

		authGroup.POST("/pin", authHandler.SetupPin)
		authGroup.POST("/login-event", authHandler.RecordLoginEvent)

		verifyMiddlewares := buildRateLimitMiddlewares(deps, "pin_verify", deps.Config.RateLimit.VerifyMaxAttempts)
		authGroup.POST("/pin/verify", withHandler(verifyMiddlewares, authHandler.VerifyPin)...)

		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionGroup := api.Group("/sessions")
		sessionGroup.Use(identityMiddleware)
		sessionHandler.RegisterRoutes(sessionGroup)
	}

	return r
}

func withHandler(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := append([]gin.HandlerFunc{}, middlewares...)
	return append(out, handler)
}

func buildRateLimitMiddlewares(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rules := []middleware.RateLimitRule{
		{
			Name:       name + "_user",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.UserIdentifier(),
		},
		{
			Name:       name + "_ip",
			Limit:      limit * 2,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		},
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rules...)}
}
