package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/infra/config"
	"github.com/arklim/moodwell/internal/transport/http/handlers"
	"github.com/arklim/moodwell/internal/transport/http/middleware"
	"github.com/arklim/moodwell/internal/usecase"
)

// AuthMountPath is where the identity endpoints are mounted in addition to
// the root, so direct callers can use the same paths as the gateway.
const AuthMountPath = "/api/auth"

// Requirement is a precondition applied ahead of an endpoint handler.
type Requirement int

const (
	RequireAccessToken Requirement = iota
	RequireLoginRateLimit
	RequireResetRateLimit
	RequireVerifyRateLimit
)

// Endpoint describes one identity route.
type Endpoint struct {
	Method   string
	Path     string
	Requires []Requirement
	Handler  gin.HandlerFunc
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	Identity       *usecase.IdentityService
	PasswordReset  *usecase.PasswordResetService
	RateLimiter    *middleware.RateLimiter
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Tracer         trace.Tracer
	Readiness      []handlers.ReadinessCheck
}

// Endpoints lists the identity surface in registration order.
func Endpoints(auth *handlers.AuthHandler, password *handlers.PasswordHandler) []Endpoint {
	return []Endpoint{
		{Method: http.MethodPost, Path: "/signup", Handler: auth.Signup},
		{Method: http.MethodPost, Path: "/login", Requires: []Requirement{RequireLoginRateLimit}, Handler: auth.Login},
		{Method: http.MethodGet, Path: "/me", Requires: []Requirement{RequireAccessToken}, Handler: auth.Me},
		{Method: http.MethodPost, Path: "/refresh", Handler: auth.Refresh},
		{Method: http.MethodPost, Path: "/logout", Requires: []Requirement{RequireAccessToken}, Handler: auth.Logout},
		{Method: http.MethodPost, Path: "/forgot-password", Requires: []Requirement{RequireResetRateLimit}, Handler: password.ForgotPassword},
		{Method: http.MethodPost, Path: "/verify-otp", Requires: []Requirement{RequireVerifyRateLimit}, Handler: password.VerifyOtp},
		{Method: http.MethodPost, Path: "/reset-password", Requires: []Requirement{RequireResetRateLimit}, Handler: password.ResetPassword},
	}
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(deps.Tracer))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler(nil))
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))

	health := handlers.NewHealthHandler(deps.Readiness...)
	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	endpoints := Endpoints(handlers.NewAuthHandler(deps.Identity), handlers.NewPasswordHandler(deps.PasswordReset))
	mount(r.Group("/"), endpoints, deps)
	mount(r.Group(AuthMountPath), endpoints, deps)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.NewErrorResponse(c, handlers.KindNotFound, "route not found"))
	})

	return r
}

func mount(group *gin.RouterGroup, endpoints []Endpoint, deps Dependencies) {
	for _, ep := range endpoints {
		chain := make([]gin.HandlerFunc, 0, len(ep.Requires)+1)
		for _, req := range ep.Requires {
			if h := resolve(req, deps); h != nil {
				chain = append(chain, h)
			}
		}
		chain = append(chain, ep.Handler)
		group.Handle(ep.Method, ep.Path, chain...)
	}
}

func resolve(req Requirement, deps Dependencies) gin.HandlerFunc {
	if req == RequireAccessToken {
		return middleware.RequireAccessToken(deps.Identity)
	}
	if deps.RateLimiter == nil {
		return nil
	}

	limits := deps.Config.RateLimit
	window := limits.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	switch req {
	case RequireLoginRateLimit:
		return deps.RateLimiter.RateLimit(
			middleware.RateLimitRule{Name: "login_ip", Limit: limits.LoginMaxAttempts * 4, Window: window, Identifier: middleware.ClientIPIdentifier()},
			middleware.RateLimitRule{Name: "login_email", Limit: limits.LoginMaxAttempts, Window: window, Identifier: middleware.JSONFieldIdentifier("email")},
		)
	case RequireResetRateLimit:
		return deps.RateLimiter.RateLimit(
			middleware.RateLimitRule{Name: "reset_email", Limit: limits.PasswordResetMaxAttempts, Window: window, Identifier: middleware.JSONFieldIdentifier("email")},
		)
	case RequireVerifyRateLimit:
		return deps.RateLimiter.RateLimit(
			middleware.RateLimitRule{Name: "verify_otp_email", Limit: limits.VerifyOTPMaxAttempts, Window: window, Identifier: middleware.JSONFieldIdentifier("email")},
		)
	}
	return nil
}
