package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/infra/logger"
)

// StubPublisher logs events instead of producing them. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) PublishPrincipalRegistered(_ context.Context, event domain.PrincipalRegisteredEvent) error {
	p.logger.Info("event",
		zap.String("event_type", EventPrincipalRegistered),
		zap.String("principal_id", event.PrincipalID),
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("role", event.Role),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	fields := []zap.Field{
		zap.String("event_type", EventPasswordResetRequested),
		zap.String("principal_id", event.PrincipalID),
		zap.String("destination", event.MaskedDestination),
		zap.Bool("delivered", event.Delivered),
	}
	if event.ExpiresAt != nil {
		fields = append(fields, zap.Time("expires_at", *event.ExpiresAt))
	}
	p.logger.Info("event", fields...)
	return nil
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logger.Info("event",
		zap.String("event_type", EventPasswordChanged),
		zap.String("principal_id", event.PrincipalID),
		zap.Bool("otp_verified", event.OTPVerified),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
