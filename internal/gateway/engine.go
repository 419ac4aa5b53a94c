package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/infra/config"
	"github.com/arklim/moodwell/internal/transport/http/handlers"
	"github.com/arklim/moodwell/internal/transport/http/middleware"
)

// Dependencies holds what the gateway engine needs besides the route table.
type Dependencies struct {
	Config         config.GatewaySettings
	Env            string
	Logger         *zap.Logger
	Router         *Router
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Tracer         trace.Tracer
}

// NewEngine mounts the health and metrics endpoints and hands every other request to the router.
func NewEngine(deps Dependencies) *gin.Engine {
	if deps.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(deps.Tracer))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler(routeLabel(deps.Router)))
	r.Use(middleware.CORS(deps.Config.CORSOrigins))
	r.Use(middleware.BodyLimit(deps.Config.BodyLimit))

	health := handlers.NewHealthHandler()
	r.GET("/healthz", health.Status)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	r.NoRoute(gin.WrapH(deps.Router))
	return r
}

func routeLabel(router *Router) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if route, ok := router.Match(c.Request.URL.Path); ok {
			return route.Name
		}
		return "unmatched"
	}
}
