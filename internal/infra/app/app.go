package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/config"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/database"
	kafkainfra "github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/kafka"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/logger"
	redisinfra "github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/redis"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/security"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/telemetry"
	postgresrepo "github.com/ctlilley19/K9-TrainPro-sub000/internal/repository/postgres"
	redisrepo "github.com/ctlilley19/K9-TrainPro-sub000/internal/repository/redis"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/transport/http/middleware"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/transport/http/routes"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/usecase"
)

// Application owns the wired service graph and the HTTP server lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

// New wires configuration, storage, messaging, and services into a runnable
// application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("failed to init tracer provider, tracing disabled", zap.Error(err))
			tracer = nil
		}
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	metrics := telemetry.New(prometheus.DefaultRegisterer)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	policy := trustPolicyFromConfig(cfg.Policy)

	pinService := usecase.NewPinService(repos.Credentials, repos.Sessions, repos.Attempts, eventPublisher, policy, metrics, log)
	trustService := usecase.NewTrustService(repos.Credentials, repos.Sessions, policy, metrics, log)
	sessionService := usecase.NewSessionService(repos.Sessions, repos.Credentials, eventPublisher, log)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Trust:    trustService,
			Pins:     pinService,
			Sessions: sessionService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. Shutdown drains in-flight requests.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()
	if a.tracer != nil {
		defer func() {
			if err := a.tracer.Shutdown(context.Background()); err != nil {
				a.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting re-authentication API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	return <-serverErrCh
}

func trustPolicyFromConfig(p config.PolicySettings) domain.TrustPolicy {
	policy := domain.TrustPolicy{
		MaxPinAttempts:      p.MaxPinAttempts,
		LockoutDuration:     p.LockoutDuration,
		PinReverifyInterval: p.PinReverifyInterval,
		FullReauthInterval:  p.FullReauthInterval,
		PinLengths:          p.PinLengths,
	}
	defaults := domain.DefaultTrustPolicy()
	if policy.MaxPinAttempts <= 0 {
		policy.MaxPinAttempts = defaults.MaxPinAttempts
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = defaults.LockoutDuration
	}
	if policy.PinReverifyInterval <= 0 {
		policy.PinReverifyInterval = defaults.PinReverifyInterval
	}
	if policy.FullReauthInterval <= 0 {
		policy.FullReauthInterval = defaults.FullReauthInterval
	}
	if len(policy.PinLengths) == 0 {
		policy.PinLengths = defaults.PinLengths
	}
	return policy
}
