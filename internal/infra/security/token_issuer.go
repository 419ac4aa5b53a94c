package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/arklim/moodwell/internal/core/domain"
)

// Re-exported so callers outside the core can match verification failures.
var (
	ErrTokenExpired = domain.ErrTokenExpired
	ErrTokenInvalid = domain.ErrTokenInvalid
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = time.Hour

	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// AccessClaims carries a snapshot of the principal's profile at mint time.
type AccessClaims struct {
	PrincipalID string `json:"_id"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Picture     string `json:"picture,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Username    string `json:"username,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Address     string `json:"address,omitempty"`
	TokenUse    string `json:"token_use"`
	jwt.RegisteredClaims
}

// RefreshClaims identify the principal only. The jti keeps two refresh tokens minted
// within the same second distinct.
type RefreshClaims struct {
	PrincipalID string `json:"_id"`
	TokenUse    string `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig holds the signing secret and lifetimes.
type TokenIssuerConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenIssuer signs HS256 tokens with a single process-wide secret.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer validates cfg and falls back to 15m/60m lifetimes when unset.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("jwt: signing secret is required")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}

	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock overrides the time source used for iat, exp and validation.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		t.now = now
	}
	return t
}

// Mint issues a fresh access and refresh token for principal.
func (t *TokenIssuer) Mint(principal domain.Principal) (domain.TokenPair, error) {
	access, err := t.MintAccess(principal)
	if err != nil {
		return domain.TokenPair{}, err
	}

	now := t.now().UTC()
	claims := RefreshClaims{
		PrincipalID: principal.ID,
		TokenUse:    tokenUseRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
		},
	}

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("jwt: sign refresh token: %w", err)
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// MintAccess issues an access token from the principal's current state.
func (t *TokenIssuer) MintAccess(principal domain.Principal) (string, error) {
	if principal.ID == "" {
		return "", errors.New("jwt: principal id is required")
	}

	now := t.now().UTC()
	claims := AccessClaims{
		PrincipalID: principal.ID,
		Name:        principal.Name,
		Email:       principal.Email,
		Role:        principal.Role,
		Picture:     principal.Picture,
		Phone:       principal.Phone,
		Username:    principal.Username,
		Bio:         principal.Bio,
		Address:     principal.Address,
		TokenUse:    tokenUseAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess checks signature, expiry and token kind of an access token.
func (t *TokenIssuer) VerifyAccess(token string) (domain.TokenSubject, error) {
	var claims AccessClaims
	if err := t.parse(token, &claims); err != nil {
		return domain.TokenSubject{}, err
	}
	if claims.TokenUse != tokenUseAccess || claims.PrincipalID == "" {
		return domain.TokenSubject{}, fmt.Errorf("%w: not an access token", ErrTokenInvalid)
	}

	return domain.TokenSubject{
		PrincipalID: claims.PrincipalID,
		Email:       claims.Email,
		Role:        claims.Role,
		IssuedAt:    numericTime(claims.IssuedAt),
		ExpiresAt:   numericTime(claims.ExpiresAt),
	}, nil
}

// VerifyRefresh checks signature, expiry and token kind of a refresh token.
func (t *TokenIssuer) VerifyRefresh(token string) (domain.TokenSubject, error) {
	var claims RefreshClaims
	if err := t.parse(token, &claims); err != nil {
		return domain.TokenSubject{}, err
	}
	if claims.TokenUse != tokenUseRefresh || claims.PrincipalID == "" {
		return domain.TokenSubject{}, fmt.Errorf("%w: not a refresh token", ErrTokenInvalid)
	}

	return domain.TokenSubject{
		PrincipalID: claims.PrincipalID,
		IssuedAt:    numericTime(claims.IssuedAt),
		ExpiresAt:   numericTime(claims.ExpiresAt),
	}, nil
}

func (t *TokenIssuer) parse(token string, claims jwt.Claims) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time.UTC()
}
