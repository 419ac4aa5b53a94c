package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/infra/logger"
	"github.com/arklim/moodwell/internal/repository"
)

// ResetOptions tunes the reset workflow. The zero value keeps challenges forever,
// and ResetPassword does not look at them.
type ResetOptions struct {
	ChallengeTTL       time.Duration
	RequireVerifiedOTP bool
}

// PasswordResetService runs the forgot-password, verify-otp and reset-password workflow.
type PasswordResetService struct {
	principals port.PrincipalRepository
	challenges port.ResetChallengeStore
	codes      port.ResetCodeGenerator
	notifier   port.ResetCodeNotifier
	hasher     port.PasswordHasher
	events     port.EventPublisher
	metrics    port.OperationRecorder
	opts       ResetOptions
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService. events and logger may be nil.
func NewPasswordResetService(principals port.PrincipalRepository, challenges port.ResetChallengeStore, codes port.ResetCodeGenerator, notifier port.ResetCodeNotifier, hasher port.PasswordHasher, events port.EventPublisher, opts ResetOptions, log *zap.Logger) *PasswordResetService {
	if log == nil {
		log = zap.NewNop()
	}

	return &PasswordResetService{
		principals: principals,
		challenges: challenges,
		codes:      codes,
		notifier:   notifier,
		hasher:     hasher,
		events:     events,
		opts:       opts,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *PasswordResetService) WithClock(clock func() time.Time) *PasswordResetService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics attaches an outcome recorder.
func (s *PasswordResetService) WithMetrics(recorder port.OperationRecorder) *PasswordResetService {
	s.metrics = recorder
	return s
}

// ForgotPassword issues a fresh code for email, replacing any pending one, and sends it.
// When delivery fails the code remains stored and ErrDeliveryFailed is returned.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { s.record("forgot_password", err) }()

	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("%w: lookup principal: %w", ErrStorage, err)
	}

	code, err := s.codes.NewResetCode()
	if err != nil {
		return err
	}

	now := s.now().UTC()
	challenge := domain.ResetChallenge{
		Email:     email,
		Code:      code,
		CreatedAt: now,
	}
	if s.opts.ChallengeTTL > 0 {
		challenge.ExpiresAt = now.Add(s.opts.ChallengeTTL)
	}

	if err := s.challenges.Put(ctx, challenge); err != nil {
		return fmt.Errorf("%w: store reset challenge: %w", ErrStorage, err)
	}

	deliveryErr := s.notifier.SendResetCode(ctx, email, code)
	s.publishResetRequested(ctx, principal, challenge, deliveryErr == nil)

	if deliveryErr != nil {
		s.logger.Warn("reset code delivery failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(deliveryErr),
		)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, deliveryErr)
	}
	return nil
}

// VerifyOtp checks code against the pending challenge for email. A match marks the
// challenge verified but does not consume it. The store compares and flags in one
// step, so a code replaced by a concurrent ForgotPassword is never marked.
func (s *PasswordResetService) VerifyOtp(ctx context.Context, email, code string) (err error) {
	defer func() { s.record("verify_otp", err) }()

	if code == "" {
		return ErrInvalidOTP
	}

	if err := s.challenges.MarkVerified(ctx, email, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOTP
		}
		return fmt.Errorf("%w: mark reset challenge verified: %w", ErrStorage, err)
	}
	return nil
}

// ResetPassword replaces the password of the principal owning email. With
// RequireVerifiedOTP set, a verified challenge must exist and is consumed.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, newPassword string) (err error) {
	defer func() { s.record("reset_password", err) }()

	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("%w: lookup principal: %w", ErrStorage, err)
	}

	if s.opts.RequireVerifiedOTP {
		challenge, err := s.challenges.Get(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOTP
			}
			return fmt.Errorf("%w: load reset challenge: %w", ErrStorage, err)
		}
		if !challenge.Verified {
			return ErrInvalidOTP
		}
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.principals.UpdatePasswordByEmail(ctx, email, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("%w: update password: %w", ErrStorage, err)
	}

	if s.opts.RequireVerifiedOTP {
		if err := s.challenges.Delete(ctx, email); err != nil {
			s.logger.Warn("failed to consume reset challenge",
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err),
			)
		}
	}

	s.publishPasswordChanged(ctx, principal)
	return nil
}

func (s *PasswordResetService) publishResetRequested(ctx context.Context, principal *domain.Principal, challenge domain.ResetChallenge, delivered bool) {
	if s.events == nil {
		return
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		PrincipalID:       principal.ID,
		MaskedDestination: logger.MaskEmail(challenge.Email),
		Delivered:         delivered,
		RequestedAt:       challenge.CreatedAt,
	}
	if !challenge.ExpiresAt.IsZero() {
		expiresAt := challenge.ExpiresAt
		event.ExpiresAt = &expiresAt
	}

	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("failed to publish password reset requested event",
			zap.String("principal_id", principal.ID),
			zap.Error(err),
		)
	}
}

func (s *PasswordResetService) publishPasswordChanged(ctx context.Context, principal *domain.Principal) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:     uuid.NewString(),
		PrincipalID: principal.ID,
		ChangedAt:   s.now().UTC(),
		OTPVerified: s.opts.RequireVerifiedOTP,
	}
	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish password changed event",
			zap.String("principal_id", principal.ID),
			zap.Error(err),
		)
	}
}

func (s *PasswordResetService) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, outcomeOf(err))
	}
}
