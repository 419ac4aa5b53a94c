package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/infra/config"
	"github.com/arklim/moodwell/internal/infra/logger"
)

// LoggingNotifier records reset code dispatches without delivering them.
// The code itself is only written when exposeCodes is set, which is the case
// outside production where no mail relay exists.
type LoggingNotifier struct {
	logger      *zap.Logger
	exposeCodes bool
}

func NewLoggingNotifier(log *zap.Logger, exposeCodes bool) *LoggingNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingNotifier{logger: log, exposeCodes: exposeCodes}
}

func (n *LoggingNotifier) SendResetCode(ctx context.Context, email, code string) error {
	fields := []zap.Field{zap.String("email", logger.MaskEmail(email))}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if n.exposeCodes {
		fields = append(fields, zap.String("code", code))
	}
	n.logger.Info("reset code dispatched", fields...)
	return nil
}

var _ port.ResetCodeNotifier = (*LoggingNotifier)(nil)

// NewNotifier selects the delivery channel named by cfg.Driver.
func NewNotifier(cfg config.MailSettings, env string, log *zap.Logger) (port.ResetCodeNotifier, error) {
	switch cfg.Driver {
	case "smtp":
		return NewSMTPNotifier(cfg, log)
	case "", "log":
		return NewLoggingNotifier(log, env != "production"), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
