package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/gateway"
	"github.com/arklim/moodwell/internal/infra/config"
	"github.com/arklim/moodwell/internal/infra/logger"
	"github.com/arklim/moodwell/internal/infra/telemetry"
	"github.com/arklim/moodwell/internal/transport/http/middleware"
)

// Gateway is the request router process.
type Gateway struct {
	cfg     *config.AppConfig
	handler http.Handler
	logger  *zap.Logger
	tracer  *telemetry.TracerProvider
}

func NewGateway(ctx context.Context, cfg *config.AppConfig) (*Gateway, error) {
	log, err := logger.New(cfg.App.Env, "moodwell-gateway")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	router, err := gateway.NewRouter(cfg.Gateway.RouteTable(), gateway.Options{
		UpstreamTimeout: cfg.Gateway.UpstreamTimeout,
	}, log)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("init router: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Subsystem: "gateway"})
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	for _, route := range router.Routes() {
		log.Info("gateway route",
			zap.String("name", route.Name),
			zap.String("prefix", route.Prefix),
			zap.String("target", route.Target.String()),
			zap.Bool("strip_prefix", route.StripPrefix),
		)
	}

	engine := gateway.NewEngine(gateway.Dependencies{
		Config:      cfg.Gateway,
		Env:         cfg.App.Env,
		Logger:      log,
		Router:      router,
		HTTPMetrics: httpMetrics,
		Tracer:      tracer.Tracer("github.com/arklim/moodwell/gateway"),
	})

	return &Gateway{cfg: cfg, handler: engine, logger: log, tracer: tracer}, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	defer func() {
		_ = g.logger.Sync()
	}()
	defer func() {
		if err := g.tracer.Shutdown(context.Background()); err != nil {
			g.logger.Warn("failed to shutdown tracer", zap.Error(err))
		}
	}()

	// No write timeout: streamed upstream responses may outlive any fixed bound.
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port),
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.logger.Info("starting gateway",
		zap.String("env", g.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	return serve(ctx, srv, g.logger)
}
