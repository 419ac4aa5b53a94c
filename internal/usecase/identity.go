package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/infra/logger"
	"github.com/arklim/moodwell/internal/repository"
)

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// SignupResult reports either the created principal or that the email was already taken.
// Existing signups are reported as a success without revealing anything else.
type SignupResult struct {
	Principal *domain.PublicPrincipal
	Existing  bool
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens    domain.TokenPair
	Principal domain.PublicPrincipal
}

// IdentityService implements registration, login, token refresh and logout.
type IdentityService struct {
	principals port.PrincipalRepository
	hasher     port.PasswordHasher
	tokens     port.TokenIssuer
	events     port.EventPublisher
	metrics    port.OperationRecorder
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewIdentityService wires the identity workflows. events and logger may be nil.
func NewIdentityService(principals port.PrincipalRepository, hasher port.PasswordHasher, tokens port.TokenIssuer, events port.EventPublisher, log *zap.Logger) *IdentityService {
	if log == nil {
		log = zap.NewNop()
	}

	return &IdentityService{
		principals: principals,
		hasher:     hasher,
		tokens:     tokens,
		events:     events,
		logger:     log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithClock overrides the clock used for creation timestamps.
func (s *IdentityService) WithClock(clock func() time.Time) *IdentityService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics attaches an outcome recorder.
func (s *IdentityService) WithMetrics(recorder port.OperationRecorder) *IdentityService {
	s.metrics = recorder
	return s
}

// Signup registers a principal. When the email is taken the call succeeds with
// Existing set and nothing is written.
func (s *IdentityService) Signup(ctx context.Context, in SignupInput) (result *SignupResult, err error) {
	defer func() { s.record("signup", err) }()

	email := in.Email
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	existing, err := s.principals.GetByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		// Keep the response time close to a real registration.
		_, _ = s.hasher.Hash(in.Password)
		return &SignupResult{Existing: true}, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%w: lookup principal: %w", ErrStorage, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	principal := domain.NewPrincipal(s.newID(), email, in.Name, in.Phone, hash, s.now())
	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return &SignupResult{Existing: true}, nil
		}
		return nil, fmt.Errorf("%w: create principal: %w", ErrStorage, err)
	}

	s.logger.Info("principal registered",
		zap.String("principal_id", principal.ID),
		zap.String("email", logger.MaskEmail(principal.Email)),
		zap.String("phone", logger.MaskPhone(principal.Phone)),
	)
	s.publishRegistered(ctx, principal)

	public := principal.Public()
	return &SignupResult{Principal: &public}, nil
}

// Login verifies the password and mints a token pair. The new refresh token replaces
// whatever was stored before, so earlier refresh tokens stop working.
func (s *IdentityService) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	defer func() { s.record("login", err) }()

	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: lookup principal: %w", ErrStorage, err)
	}

	ok, err := s.hasher.Verify(password, principal.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Mint(*principal)
	if err != nil {
		return nil, fmt.Errorf("mint tokens: %w", err)
	}

	if err := s.principals.SetRefreshToken(ctx, principal.ID, pair.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: store refresh token: %w", ErrStorage, err)
	}

	s.logger.Debug("principal logged in",
		zap.String("principal_id", principal.ID),
		zap.String("email", logger.MaskEmail(principal.Email)),
	)

	return &LoginResult{Tokens: pair, Principal: principal.Public()}, nil
}

// GetSelf re-reads the principal so the caller sees current state rather than the token snapshot.
func (s *IdentityService) GetSelf(ctx context.Context, principalID string) (*domain.PublicPrincipal, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: lookup principal: %w", ErrStorage, err)
	}

	public := principal.Public()
	return &public, nil
}

// Refresh mints a new access token when refreshToken is the one currently stored for its
// principal. The refresh token itself is not rotated.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (access string, err error) {
	defer func() { s.record("refresh", err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", ErrRefreshTokenRequired
	}

	subject, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}

	principal, err := s.principals.GetByID(ctx, subject.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("%w: lookup principal: %w", ErrStorage, err)
	}

	stored := principal.RefreshToken
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return "", ErrInvalidRefreshToken
	}

	access, err = s.tokens.MintAccess(*principal)
	if err != nil {
		return "", fmt.Errorf("mint access token: %w", err)
	}
	return access, nil
}

// Logout clears the stored refresh token. It is idempotent and succeeds for unknown principals.
func (s *IdentityService) Logout(ctx context.Context, principalID string) (err error) {
	defer func() { s.record("logout", err) }()

	if err := s.principals.SetRefreshToken(ctx, principalID, ""); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: clear refresh token: %w", ErrStorage, err)
	}
	return nil
}

// ParseAccessToken verifies a bearer token for the HTTP layer.
func (s *IdentityService) ParseAccessToken(token string) (domain.TokenSubject, error) {
	subject, err := s.tokens.VerifyAccess(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return domain.TokenSubject{}, ErrExpiredAccessToken
		}
		return domain.TokenSubject{}, ErrInvalidAccessToken
	}
	return subject, nil
}

func (s *IdentityService) publishRegistered(ctx context.Context, principal domain.Principal) {
	if s.events == nil {
		return
	}

	event := domain.PrincipalRegisteredEvent{
		EventID:      uuid.NewString(),
		PrincipalID:  principal.ID,
		Email:        principal.Email,
		Role:         principal.Role,
		RegisteredAt: principal.CreatedAt,
	}
	if err := s.events.PublishPrincipalRegistered(ctx, event); err != nil {
		s.logger.Warn("failed to publish principal registered event",
			zap.String("principal_id", principal.ID),
			zap.Error(err),
		)
	}
}

func (s *IdentityService) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, outcomeOf(err))
	}
}
