package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/moodwell/internal/gateway"
	"github.com/arklim/moodwell/internal/infra/config"
	"github.com/arklim/moodwell/internal/transport/http/middleware"
)

type seenRequest struct {
	Method  string
	Path    string
	Query   string
	Host    string
	Body    string
	Headers http.Header
}

type backend struct {
	*httptest.Server
	mu   sync.Mutex
	seen []seenRequest
}

func newBackend(t *testing.T, name string) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.seen = append(b.seen, seenRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Host:    r.Host,
			Body:    string(body),
			Headers: r.Header.Clone(),
		})
		b.mu.Unlock()

		w.Header().Set("X-Backend", name)
		w.Header().Set("Set-Cookie", "session=abc; Path=/")
		if r.URL.Path == "/me" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set(middleware.RequestIDHeader, r.Header.Get(middleware.RequestIDHeader))
			w.Header().Set(middleware.TraceIDHeader, "backend-trace")
		}
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not here"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(name))
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) last(t *testing.T) seenRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.seen, "backend received no request")
	return b.seen[len(b.seen)-1]
}

func (b *backend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}

type harness struct {
	engine   *gin.Engine
	registry *prometheus.Registry
	auth     *backend
	mood     *backend
	spans    *tracetest.SpanRecorder
}

func newHarness(t *testing.T, settings config.GatewaySettings) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	auth := newBackend(t, "auth")
	mood := newBackend(t, "mood")
	if len(settings.Routes) == 0 {
		settings.Routes = []config.GatewayRoute{
			{Name: "auth", Prefix: "/api/auth", Target: auth.URL, StripPrefix: true},
			{Name: "mood", Prefix: "/api/mood", Target: mood.URL, StripPrefix: true},
			{Name: "dead", Prefix: "/api/dead", Target: "http://127.0.0.1:1", StripPrefix: true},
		}
	}

	router, err := gateway.NewRouter(settings.RouteTable(), gateway.Options{UpstreamTimeout: settings.UpstreamTimeout}, log)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry, Subsystem: "gateway"})
	require.NoError(t, err)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTextMapPropagator(propagation.TraceContext{})

	engine := gateway.NewEngine(gateway.Dependencies{
		Config:      settings,
		Logger:      log,
		Router:      router,
		HTTPMetrics: metrics,
		Tracer:      tp.Tracer("gateway-test"),
	})

	return &harness{engine: engine, registry: registry, auth: auth, mood: mood, spans: spans}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func TestRouteMatchesOnSegmentBoundary(t *testing.T) {
	route := gateway.Route{Prefix: "/api/auth"}

	assert.True(t, route.Matches("/api/auth"))
	assert.True(t, route.Matches("/api/auth/login"))
	assert.True(t, route.Matches("/api/auth/"))
	assert.False(t, route.Matches("/api/authx"))
	assert.False(t, route.Matches("/api"))
	assert.True(t, gateway.Route{Prefix: "/"}.Matches("/anything"))
}

func TestNewRouterValidatesTable(t *testing.T) {
	log := zaptest.NewLogger(t)

	cases := []struct {
		name  string
		route config.GatewayRoute
	}{
		{"empty prefix", config.GatewayRoute{Name: "a", Target: "http://localhost:1"}},
		{"relative target", config.GatewayRoute{Name: "a", Prefix: "/a", Target: "localhost:1"}},
		{"unsupported scheme", config.GatewayRoute{Name: "a", Prefix: "/a", Target: "ftp://host"}},
		{"missing host", config.GatewayRoute{Name: "a", Prefix: "/a", Target: "http://"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gateway.NewRouter([]config.GatewayRoute{tc.route}, gateway.Options{}, log)
			assert.Error(t, err)
		})
	}
}

func TestNewRouterNormalizesPrefixes(t *testing.T) {
	router, err := gateway.NewRouter([]config.GatewayRoute{
		{Prefix: "api/mood/", Target: "http://localhost:3003"},
	}, gateway.Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	routes := router.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "/api/mood", routes[0].Prefix)
	assert.Equal(t, "/api/mood", routes[0].Name)

	_, ok := router.Match("/api/mood/today")
	assert.True(t, ok)
}

func TestFirstMatchWins(t *testing.T) {
	router, err := gateway.NewRouter([]config.GatewayRoute{
		{Name: "narrow", Prefix: "/api/chat/admin", Target: "http://localhost:1"},
		{Name: "wide", Prefix: "/api/chat", Target: "http://localhost:2"},
	}, gateway.Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	route, ok := router.Match("/api/chat/admin/rooms")
	require.True(t, ok)
	assert.Equal(t, "narrow", route.Name)

	route, ok = router.Match("/api/chat/rooms")
	require.True(t, ok)
	assert.Equal(t, "wide", route.Name)
}

func TestProxyStripsPrefixAndForwardsRequest(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login?next=%2Fhome", strings.NewReader(`{"email":"a@x.io"}`))
	req.Host = "gateway.moodwell.local"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer abc")
	rec := h.do(req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "auth", rec.Body.String())
	assert.Equal(t, "auth", rec.Header().Get("X-Backend"))
	assert.Equal(t, "session=abc; Path=/", rec.Header().Get("Set-Cookie"))

	seen := h.auth.last(t)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/login", seen.Path)
	assert.Equal(t, "next=%2Fhome", seen.Query)
	assert.Equal(t, "gateway.moodwell.local", seen.Host)
	assert.Equal(t, `{"email":"a@x.io"}`, seen.Body)
	assert.Equal(t, "Bearer abc", seen.Headers.Get("Authorization"))
	assert.Empty(t, seen.Headers.Get("X-Forwarded-For"))
	assert.NotEmpty(t, seen.Headers.Get("Traceparent"))
	assert.Equal(t, 0, h.mood.count())
}

func TestProxyBarePrefixReachesBackendRoot(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/mood", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/", h.mood.last(t).Path)
}

func TestProxyKeepsPrefixWhenNotStripped(t *testing.T) {
	auth := newBackend(t, "auth")
	h := newHarness(t, config.GatewaySettings{Routes: []config.GatewayRoute{
		{Name: "auth", Prefix: "/api/auth", Target: auth.URL},
	}})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/auth/me", auth.last(t).Path)
}

func TestProxyPassesClientForwardedHeaders(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	req := httptest.NewRequest(http.MethodGet, "/api/mood/entries", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	h.do(req)

	assert.Equal(t, []string{"203.0.113.9"}, h.mood.last(t).Headers.Values("X-Forwarded-For"))
}

func TestProxyBackendHeadersReplaceGatewayValues(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Origin", "https://app.moodwell.local")
	rec := h.do(req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"*"}, rec.Header().Values("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"backend-trace"}, rec.Header().Values(middleware.TraceIDHeader))

	forwarded := h.auth.last(t).Headers.Get(middleware.RequestIDHeader)
	require.NotEmpty(t, forwarded, "gateway request id must reach the backend")
	assert.Equal(t, []string{forwarded}, rec.Header().Values(middleware.RequestIDHeader))
}

func TestProxyForwardsClientRequestID(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set(middleware.RequestIDHeader, "client-req-1")
	rec := h.do(req)

	assert.Equal(t, "client-req-1", h.auth.last(t).Headers.Get(middleware.RequestIDHeader))
	assert.Equal(t, []string{"client-req-1"}, rec.Header().Values(middleware.RequestIDHeader))
}

func TestProxyKeepsGatewayHeadersTheBackendOmits(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/mood/entries", nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"*"}, rec.Header().Values("Access-Control-Allow-Origin"))
	assert.Len(t, rec.Header().Values(middleware.RequestIDHeader), 1)
	assert.Equal(t, h.mood.last(t).Headers.Get(middleware.RequestIDHeader), rec.Header().Get(middleware.RequestIDHeader))
}

func TestProxyRelaysBackendErrorsUnchanged(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/mood/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"not here"}`, rec.Body.String())
}

func TestUnmatchedPathReturnsNotFound(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/authx/login", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "route not found", body["error"])
	assert.Equal(t, "NotFound", body["kind"])
	assert.NotEmpty(t, body["trace_id"])
	assert.Equal(t, 0, h.auth.count())
}

func TestUnreachableUpstreamReturnsBadGateway(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/dead/ping", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "upstream unavailable", body["error"])
	assert.Equal(t, "UpstreamUnavailable", body["kind"])
}

func TestBodyLimitRejectsLargePayloads(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{BodyLimit: 8})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email":"someone@example.com"}`)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, h.auth.count())
}

func TestPreflightIsAnsweredByGateway(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{CORSOrigins: []string{"https://app.moodwell.io"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://app.moodwell.io")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := h.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.moodwell.io", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 0, h.auth.count())
}

func TestHealthIsServedLocally(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, 0, h.auth.count())
}

func TestMetricsAreLabelledByRouteName(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	h.do(httptest.NewRequest(http.MethodGet, "/api/mood/entries/42", nil))
	h.do(httptest.NewRequest(http.MethodGet, "/nowhere/at/all", nil))

	expected := `
# HELP moodwell_gateway_requests_total Total number of HTTP requests partitioned by method, route, and status code.
# TYPE moodwell_gateway_requests_total counter
moodwell_gateway_requests_total{method="GET",route="mood",status="201"} 1
moodwell_gateway_requests_total{method="GET",route="unmatched",status="404"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.registry, strings.NewReader(expected), "moodwell_gateway_requests_total"))
}

func TestProxyRecordsServerSpan(t *testing.T) {
	h := newHarness(t, config.GatewaySettings{})

	h.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "GET unmatched", ended[0].Name())
	assert.Equal(t, ended[0].SpanContext().TraceID().String(),
		strings.Split(h.auth.last(t).Headers.Get("Traceparent"), "-")[1])
}
