package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/repository"
)

func TestSignupCreatesPrincipal(t *testing.T) {
	h := newHarness(t, ResetOptions{})

	created := h.signup(t, "jane@example.com", "s3cret-pass")

	if created.Username != "jane@example.com" || created.Role != domain.DefaultRole {
		t.Fatalf("unexpected defaults: %+v", created)
	}
	if !created.CreatedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected createdAt from clock, got %s", created.CreatedAt)
	}

	stored, err := h.principals.GetByEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "s3cret-pass" {
		t.Fatalf("expected hashed password, got %q", stored.PasswordHash)
	}
	if len(h.events.registered) != 1 || h.events.registered[0].PrincipalID != stored.ID {
		t.Fatalf("expected one registered event, got %+v", h.events.registered)
	}
	if h.metrics.outcomes["signup"] != "success" {
		t.Fatalf("expected signup success metric, got %q", h.metrics.outcomes["signup"])
	}
}

func TestSignupDuplicateIsNoop(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()

	h.signup(t, "dup@example.com", "first-password")
	before, _ := h.principals.GetByEmail(ctx, "dup@example.com")

	res, err := h.identity.Signup(ctx, SignupInput{Email: "dup@example.com", Password: "second-password", Name: "Other"})
	if err != nil {
		t.Fatalf("duplicate signup: %v", err)
	}
	if !res.Existing || res.Principal != nil {
		t.Fatalf("expected existing marker, got %+v", res)
	}

	after, _ := h.principals.GetByEmail(ctx, "dup@example.com")
	if after.PasswordHash != before.PasswordHash || after.Name != before.Name {
		t.Fatal("duplicate signup modified the stored principal")
	}

	if _, err := h.identity.Login(ctx, "dup@example.com", "first-password"); err != nil {
		t.Fatalf("original password no longer works: %v", err)
	}
	if _, err := h.identity.Login(ctx, "dup@example.com", "second-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected second password to be rejected, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	h.signup(t, "jane@example.com", "right-password")

	if _, err := h.identity.Login(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if h.metrics.outcomes["login"] != "not_found" {
		t.Fatalf("expected not_found metric, got %q", h.metrics.outcomes["login"])
	}

	if _, err := h.identity.Login(ctx, "jane@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	stored, _ := h.principals.GetByEmail(ctx, "jane@example.com")
	if stored.RefreshToken != "" {
		t.Fatal("failed login must not store a refresh token")
	}
}

func TestLoginIssuesTokens(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	created := h.signup(t, "jane@example.com", "right-password")

	res, err := h.identity.Login(ctx, "jane@example.com", "right-password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Principal.ID != created.ID {
		t.Fatalf("unexpected principal %+v", res.Principal)
	}

	stored, _ := h.principals.GetByID(ctx, created.ID)
	if stored.RefreshToken != res.Tokens.RefreshToken {
		t.Fatal("refresh token was not persisted")
	}

	subject, err := h.identity.ParseAccessToken(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if subject.PrincipalID != created.ID {
		t.Fatalf("unexpected subject %+v", subject)
	}

	self, err := h.identity.GetSelf(ctx, subject.PrincipalID)
	if err != nil {
		t.Fatalf("get self: %v", err)
	}
	if self.Email != "jane@example.com" {
		t.Fatalf("unexpected self %+v", self)
	}
}

func TestRefreshReflectsCurrentState(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	created := h.signup(t, "jane@example.com", "pw-123456")

	res, err := h.identity.Login(ctx, "jane@example.com", "pw-123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	stored, _ := h.principals.GetByID(ctx, created.ID)
	stored.Role = "admin"
	if err := h.principals.Update(ctx, *stored); err != nil {
		t.Fatalf("update: %v", err)
	}

	access, err := h.identity.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	subject, err := h.identity.ParseAccessToken(access)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if subject.Role != "admin" {
		t.Fatalf("expected refreshed token to carry current role, got %q", subject.Role)
	}
}

func TestRefreshRejections(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	created := h.signup(t, "jane@example.com", "pw-123456")

	if _, err := h.identity.Refresh(ctx, "  "); !errors.Is(err, ErrRefreshTokenRequired) {
		t.Fatalf("expected ErrRefreshTokenRequired, got %v", err)
	}
	if _, err := h.identity.Refresh(ctx, "garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for garbage, got %v", err)
	}

	first, err := h.identity.Login(ctx, "jane@example.com", "pw-123456")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := h.identity.Login(ctx, "jane@example.com", "pw-123456")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if _, err := h.identity.Refresh(ctx, first.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected superseded refresh token to fail, got %v", err)
	}
	if h.metrics.outcomes["refresh"] != "forbidden" {
		t.Fatalf("expected forbidden metric, got %q", h.metrics.outcomes["refresh"])
	}
	if _, err := h.identity.Refresh(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("current refresh token rejected: %v", err)
	}

	if _, err := h.identity.Refresh(ctx, second.Tokens.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}

	if err := h.identity.Logout(ctx, created.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := h.identity.Refresh(ctx, second.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	h.signup(t, "jane@example.com", "pw-123456")

	res, err := h.identity.Login(ctx, "jane@example.com", "pw-123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	h.clock.Advance(15*time.Minute + time.Second)
	if _, err := h.identity.ParseAccessToken(res.Tokens.AccessToken); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("expected expired access token, got %v", err)
	}
	if _, err := h.identity.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh within 60m failed: %v", err)
	}

	h.clock.Advance(45 * time.Minute)
	if _, err := h.identity.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh after 60m to fail, got %v", err)
	}

	if _, err := h.identity.ParseAccessToken("not-a-token"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	created := h.signup(t, "jane@example.com", "pw-123456")

	for i := 0; i < 2; i++ {
		if err := h.identity.Logout(ctx, created.ID); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}
	if err := h.identity.Logout(ctx, "unknown-id"); err != nil {
		t.Fatalf("logout of unknown principal: %v", err)
	}
}

func TestGetSelfMissing(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	if _, err := h.identity.GetSelf(context.Background(), "ghost"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

type stubPrincipals struct {
	err error
}

func (s *stubPrincipals) Create(context.Context, domain.Principal) error { return s.err }
func (s *stubPrincipals) GetByID(context.Context, string) (*domain.Principal, error) {
	return nil, s.err
}
func (s *stubPrincipals) GetByEmail(context.Context, string) (*domain.Principal, error) {
	return nil, s.err
}
func (s *stubPrincipals) SetRefreshToken(context.Context, string, string) error       { return s.err }
func (s *stubPrincipals) UpdatePasswordByEmail(context.Context, string, string) error { return s.err }

func TestStorageFailuresAreWrapped(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	broken := errors.New("connection refused")
	svc := NewIdentityService(&stubPrincipals{err: broken}, nil, h.issuer, nil, nil)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "a@x.io", "pw"); !errors.Is(err, ErrStorage) || !errors.Is(err, broken) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
	if _, err := svc.Signup(ctx, SignupInput{Email: "a@x.io", Password: "pw"}); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error on signup, got %v", err)
	}
	if err := svc.Logout(ctx, "id"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error on logout, got %v", err)
	}

	notFound := NewIdentityService(&stubPrincipals{err: repository.ErrNotFound}, nil, h.issuer, nil, nil)
	if err := notFound.Logout(ctx, "id"); err != nil {
		t.Fatalf("logout of missing principal should succeed, got %v", err)
	}
}

func TestConcurrentLoginsKeepOneRefreshToken(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	h.signup(t, "jane@example.com", "secret")

	const logins = 8
	var wg sync.WaitGroup
	results := make([]*LoginResult, logins)
	errs := make([]error, logins)
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.identity.Login(ctx, "jane@example.com", "secret")
		}(i)
	}
	wg.Wait()

	valid := 0
	for i := 0; i < logins; i++ {
		if errs[i] != nil {
			t.Fatalf("login %d: %v", i, errs[i])
		}
		if _, err := h.identity.Refresh(ctx, results[i].Tokens.RefreshToken); err == nil {
			valid++
		} else if !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("refresh %d: unexpected error %v", i, err)
		}
	}
	if valid != 1 {
		t.Fatalf("expected exactly one live refresh token, got %d", valid)
	}
}

func TestRefreshRacingLoginRejectsReplacedToken(t *testing.T) {
	h := newHarness(t, ResetOptions{})
	ctx := context.Background()
	h.signup(t, "jane@example.com", "secret")

	first, err := h.identity.Login(ctx, "jane@example.com", "secret")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	var (
		wg        sync.WaitGroup
		second    *LoginResult
		loginErr  error
		refreshes = make([]error, 16)
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, loginErr = h.identity.Login(ctx, "jane@example.com", "secret")
	}()
	for i := range refreshes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, refreshes[i] = h.identity.Refresh(ctx, first.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	if loginErr != nil {
		t.Fatalf("second login: %v", loginErr)
	}
	for i, err := range refreshes {
		if err != nil && !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("refresh %d: unexpected error %v", i, err)
		}
	}

	if _, err := h.identity.Refresh(ctx, first.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected replaced token to be rejected, got %v", err)
	}
	if _, err := h.identity.Refresh(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh with current token: %v", err)
	}
}
