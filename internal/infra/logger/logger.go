package logger

import (
	"context"
	"net"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns the process-wide zap.Logger. Production emits JSON, every other
// environment emits colored console output. The service name is attached to all entries.
func New(env, service string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
		if err == nil && service != "" {
			lg = lg.With(zap.String("service", service))
		}
	})

	return lg, err
}

// WithContext attaches request scoped fields to the logger.
func WithContext(ctx context.Context) *zap.Logger {
	base := lg
	if base == nil {
		base = zap.NewNop()
	}
	if ctx == nil {
		return base
	}

	if id := RequestIDFromContext(ctx); id != "" {
		return base.With(zap.String("request_id", id))
	}
	return base
}

// RequestIDFromContext returns the correlation id stored by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return val
	}
	return ""
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

var (
	emailRegex = regexp.MustCompile(`^([^@]{1,2})[^@]*(@.+)$`)
	phoneRegex = regexp.MustCompile(`^(\+?\d{1,3})\d{3,}(\d{3})$`)
)

// MaskEmail keeps the first two characters of the local part and the domain.
// Example: jane.doe@example.com -> ja***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	if m := emailRegex.FindStringSubmatch(email); len(m) == 3 {
		return m[1] + "***" + m[2]
	}
	return "***"
}

// MaskPhone keeps the country prefix and the last three digits.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}

	compact := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(phone)
	if m := phoneRegex.FindStringSubmatch(compact); len(m) == 3 {
		return m[1] + "***" + m[2]
	}
	return "***"
}

// MaskIP hides the host part of an address: the last two octets for IPv4,
// everything after the /64 prefix for IPv6.
func MaskIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		if ip == "" {
			return ""
		}
		return "***"
	}

	if v4 := parsed.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		return parts[0] + "." + parts[1] + ".*.*"
	}

	groups := strings.Split(parsed.To16().String(), ":")
	if len(groups) >= 4 {
		return strings.Join(groups[:4], ":") + ":*"
	}
	return "***"
}

// MaskToken reduces bearer credentials to a short fingerprint usable for correlation.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
