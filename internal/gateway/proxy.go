package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/infra/logger"
	"github.com/arklim/moodwell/internal/transport/http/middleware"
)

type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	TraceID string `json:"trace_id,omitempty"`
}

// forwardedHeaders are removed from the outbound request by ReverseProxy in
// Rewrite mode. Client supplied values are passed through untouched.
var forwardedHeaders = []string{"X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

func newTransport(timeout time.Duration) http.RoundTripper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

func newProxy(route Route, transport http.RoundTripper, log *zap.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if route.StripPrefix {
				stripPrefix(pr.Out, route.Prefix)
			}
			pr.SetURL(route.Target)
			pr.Out.Host = pr.In.Host

			for _, h := range forwardedHeaders {
				if values, ok := pr.In.Header[h]; ok {
					pr.Out.Header[h] = values
				}
			}
			if id := logger.RequestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}
			otel.GetTextMapPropagator().Inject(pr.In.Context(), propagation.HeaderCarrier(pr.Out.Header))
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("upstream unavailable",
				zap.String("route", route.Name),
				zap.String("target", route.Target.Host),
				zap.String("request_id", logger.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeError(w, r, http.StatusBadGateway, "UpstreamUnavailable", "upstream unavailable")
		},
	}
}

// upstreamWriter collects the headers ReverseProxy copies from the backend and
// applies them with Set when the status is written, so a header the backend
// sends replaces the value the gateway middleware already put on the response.
type upstreamWriter struct {
	http.ResponseWriter
	pending     http.Header
	wroteHeader bool
}

func newUpstreamWriter(w http.ResponseWriter) *upstreamWriter {
	return &upstreamWriter{ResponseWriter: w, pending: make(http.Header)}
}

func (w *upstreamWriter) Header() http.Header {
	if w.wroteHeader {
		return w.ResponseWriter.Header()
	}
	return w.pending
}

func (w *upstreamWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	dst := w.ResponseWriter.Header()

	// Informational responses carry their own headers and must not leak
	// into the final response.
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		saved := make(http.Header, len(w.pending))
		for k, v := range w.pending {
			if prev, ok := dst[k]; ok {
				saved[k] = prev
			}
			dst[k] = v
		}
		w.ResponseWriter.WriteHeader(code)
		for k := range w.pending {
			if prev, ok := saved[k]; ok {
				dst[k] = prev
			} else {
				delete(dst, k)
			}
		}
		return
	}

	for k, v := range w.pending {
		dst[k] = v
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *upstreamWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.NewResponseController reach Flush and Hijack on the
// underlying writer for streaming and upgraded connections.
func (w *upstreamWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// stripPrefix removes the route prefix so /api/auth/login reaches the backend
// as /login and /api/auth as /.
func stripPrefix(out *http.Request, prefix string) {
	if prefix == "/" {
		return
	}
	out.URL.Path = ensureLeadingSlash(strings.TrimPrefix(out.URL.Path, prefix))
	if out.URL.RawPath != "" {
		out.URL.RawPath = ensureLeadingSlash(strings.TrimPrefix(out.URL.RawPath, prefix))
	}
}

func ensureLeadingSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	body := errorBody{Error: message, Kind: kind}
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		body.TraceID = sc.TraceID().String()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
