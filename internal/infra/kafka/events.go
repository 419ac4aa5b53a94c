package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	EventPrincipalRegistered    = "identity.principal.registered"
	EventPasswordResetRequested = "identity.password.reset_requested"
	EventPasswordChanged        = "identity.password.changed"
)

// EventPublisher implements port.EventPublisher on top of Producer.
type EventPublisher struct {
	producer *Producer
	app      config.AppSettings
}

func NewEventPublisher(producer *Producer, app config.AppSettings) *EventPublisher {
	return &EventPublisher{producer: producer, app: app}
}

type eventEnvelope struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Version     string            `json:"version"`
	Payload     any               `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, principalID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.app.Name,
		"environment": p.app.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:     eventID,
		EventType:   eventType,
		PrincipalID: principalID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(principalID),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) PublishPrincipalRegistered(ctx context.Context, event domain.PrincipalRegisteredEvent) error {
	payload := struct {
		PrincipalID  string    `json:"principal_id"`
		Email        string    `json:"email"`
		Role         string    `json:"role"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		PrincipalID:  event.PrincipalID,
		Email:        event.Email,
		Role:         event.Role,
		RegisteredAt: event.RegisteredAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventPrincipalRegistered, event.PrincipalID, event.RegisteredAt, payload)
}

// PublishPasswordResetRequested never carries the reset code.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		PrincipalID       string     `json:"principal_id"`
		MaskedDestination string     `json:"masked_destination"`
		Delivered         bool       `json:"delivered"`
		RequestedAt       time.Time  `json:"requested_at"`
		ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	}{
		PrincipalID:       event.PrincipalID,
		MaskedDestination: event.MaskedDestination,
		Delivered:         event.Delivered,
		RequestedAt:       event.RequestedAt.UTC(),
		ExpiresAt:         event.ExpiresAt,
	}
	return p.publish(ctx, event.EventID, EventPasswordResetRequested, event.PrincipalID, event.RequestedAt, payload)
}

func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		PrincipalID string    `json:"principal_id"`
		ChangedAt   time.Time `json:"changed_at"`
		OTPVerified bool      `json:"otp_verified"`
	}{
		PrincipalID: event.PrincipalID,
		ChangedAt:   event.ChangedAt.UTC(),
		OTPVerified: event.OTPVerified,
	}
	return p.publish(ctx, event.EventID, EventPasswordChanged, event.PrincipalID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
