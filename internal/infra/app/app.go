package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/infra/config"
	"github.com/arklim/moodwell/internal/infra/database"
	kafkainfra "github.com/arklim/moodwell/internal/infra/kafka"
	"github.com/arklim/moodwell/internal/infra/logger"
	"github.com/arklim/moodwell/internal/infra/mail"
	redisinfra "github.com/arklim/moodwell/internal/infra/redis"
	"github.com/arklim/moodwell/internal/infra/security"
	"github.com/arklim/moodwell/internal/infra/telemetry"
	"github.com/arklim/moodwell/internal/repository/memory"
	mongorepo "github.com/arklim/moodwell/internal/repository/mongo"
	postgresrepo "github.com/arklim/moodwell/internal/repository/postgres"
	redisrepo "github.com/arklim/moodwell/internal/repository/redis"
	"github.com/arklim/moodwell/internal/transport/http/handlers"
	"github.com/arklim/moodwell/internal/transport/http/middleware"
	"github.com/arklim/moodwell/internal/transport/http/routes"
	"github.com/arklim/moodwell/internal/usecase"
)

// Application is the identity service process.
type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	tracer  *telemetry.TracerProvider
	closers []func(context.Context) error
}

func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, a.tracer.Shutdown)

	var readiness []handlers.ReadinessCheck

	principals, checks, err := a.openPrincipalStore(ctx)
	if err != nil {
		return nil, err
	}
	readiness = append(readiness, checks...)

	var redisClient *redisinfra.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return redisClient.Close() })
		readiness = append(readiness, handlers.ReadinessCheck{Name: "redis", Check: redisClient.Ping})
	}

	challenges, err := resetChallengeStore(cfg.Reset, redisClient)
	if err != nil {
		return nil, err
	}

	events := a.eventPublisher()

	notifier, err := mail.NewNotifier(cfg.Mail, cfg.App.Env, log)
	if err != nil {
		return nil, fmt.Errorf("init mail notifier: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	tokens, err := security.NewTokenIssuer(security.TokenIssuerConfig{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	identityMetrics := telemetry.NewIdentityMetrics(nil)
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	identity := usecase.NewIdentityService(principals, hasher, tokens, events, log).
		WithMetrics(identityMetrics)
	passwordReset := usecase.NewPasswordResetService(principals, challenges, security.ResetCodeGenerator{}, notifier, hasher, events,
		usecase.ResetOptions{
			ChallengeTTL:       cfg.Reset.ChallengeTTL,
			RequireVerifiedOTP: cfg.Reset.RequireVerifiedOTP,
		}, log).
		WithMetrics(identityMetrics)

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		store := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: "moodwell:rate-limit",
			TTL:       window * 2,
		})
		rateLimiter = middleware.NewRateLimiter(store, log)
	} else {
		log.Warn("redis disabled, rate limiting is off")
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:        cfg,
		Logger:        log,
		Identity:      identity,
		PasswordReset: passwordReset,
		RateLimiter:   rateLimiter,
		HTTPMetrics:   httpMetrics,
		Tracer:        a.tracer.Tracer("github.com/arklim/moodwell/identity"),
		Readiness:     readiness,
	})

	return a, nil
}

// openPrincipalStore connects the configured credential store.
func (a *Application) openPrincipalStore(ctx context.Context) (port.PrincipalRepository, []handlers.ReadinessCheck, error) {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case "", "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })

		if cfg.Postgres.MigrateOnStart {
			if err := postgresrepo.Migrate(ctx, pool); err != nil {
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return postgresrepo.NewPrincipalRepository(pool),
			[]handlers.ReadinessCheck{{Name: "postgres", Check: pool.Ping}}, nil

	case "mongo":
		client, err := database.NewMongoClient(ctx, cfg.Mongo, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)

		repo := mongorepo.NewPrincipalRepository(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return repo, []handlers.ReadinessCheck{{Name: "mongo", Check: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		}}}, nil

	case "memory":
		a.logger.Warn("using in-memory principal store, data is lost on restart")
		return memory.NewPrincipalRepository(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func resetChallengeStore(cfg config.ResetSettings, client *redisinfra.Client) (port.ResetChallengeStore, error) {
	switch cfg.Store {
	case "", "memory":
		return memory.NewResetChallengeStore(), nil
	case "redis":
		if client == nil {
			return nil, errors.New("reset.store=redis requires redis.enabled")
		}
		return redisrepo.NewResetChallengeRepository(client.Client(), cfg.KeyPrefix), nil
	}
	return nil, fmt.Errorf("unknown reset store %q", cfg.Store)
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.closers = append(a.closers, func(context.Context) error { return producer.Close() })
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("store", a.cfg.Store.Driver),
	)

	return serve(ctx, srv, a.logger)
}

// close releases resources in reverse acquisition order.
func (a *Application) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func serve(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down", zap.String("address", srv.Addr))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
