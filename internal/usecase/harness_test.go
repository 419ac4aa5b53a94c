package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/infra/security"
	"github.com/arklim/moodwell/internal/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
	err  error
}

func (n *recordingNotifier) SendResetCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[string][]string)
	}
	n.sent[email] = append(n.sent[email], code)
	return n.err
}

func (n *recordingNotifier) last(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	codes := n.sent[email]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.PrincipalRegisteredEvent
	requested  []domain.PasswordResetRequestedEvent
	changed    []domain.PasswordChangedEvent
	err        error
}

func (p *recordingPublisher) PublishPrincipalRegistered(_ context.Context, e domain.PrincipalRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, e)
	return p.err
}

func (p *recordingPublisher) PublishPasswordResetRequested(_ context.Context, e domain.PasswordResetRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested = append(p.requested, e)
	return p.err
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, e domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (m *recordingMetrics) RecordOperation(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]string)
	}
	m.outcomes[operation] = outcome
}

type fixedCodes struct {
	codes []string
}

func (f *fixedCodes) NewResetCode() (string, error) {
	if len(f.codes) == 0 {
		return "", errors.New("no codes left")
	}
	code := f.codes[0]
	f.codes = f.codes[1:]
	return code, nil
}

type harness struct {
	clock      *testClock
	principals *memory.PrincipalRepository
	challenges *memory.ResetChallengeStore
	issuer     *security.TokenIssuer
	notifier   *recordingNotifier
	events     *recordingPublisher
	metrics    *recordingMetrics
	identity   *IdentityService
	reset      *PasswordResetService
}

func newHarness(t *testing.T, opts ResetOptions) *harness {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	issuer, err := security.NewTokenIssuer(security.TokenIssuerConfig{Secret: "usecase-test-secret"})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	issuer.WithClock(clock.Now)

	h := &harness{
		clock:      clock,
		principals: memory.NewPrincipalRepository(),
		challenges: memory.NewResetChallengeStore().WithClock(clock.Now),
		issuer:     issuer,
		notifier:   &recordingNotifier{},
		events:     &recordingPublisher{},
		metrics:    &recordingMetrics{},
	}

	log := zaptest.NewLogger(t)
	h.identity = NewIdentityService(h.principals, hasher, issuer, h.events, log).
		WithClock(clock.Now).
		WithMetrics(h.metrics)
	h.reset = NewPasswordResetService(h.principals, h.challenges, security.ResetCodeGenerator{}, h.notifier, hasher, h.events, opts, log).
		WithClock(clock.Now).
		WithMetrics(h.metrics)

	return h
}

func (h *harness) signup(t *testing.T, email, password string) domain.PublicPrincipal {
	t.Helper()
	res, err := h.identity.Signup(context.Background(), SignupInput{Name: "Test", Email: email, Password: password, Phone: "555"})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	if res.Existing || res.Principal == nil {
		t.Fatalf("expected new principal for %s, got %+v", email, res)
	}
	return *res.Principal
}
