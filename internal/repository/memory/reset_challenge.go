package memory

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/repository"
)

// ResetChallengeStore keeps challenges in process memory. Expired entries are
// dropped lazily on read.
type ResetChallengeStore struct {
	mu         sync.RWMutex
	challenges map[string]domain.ResetChallenge
	now        func() time.Time
}

// NewResetChallengeStore returns an empty store.
func NewResetChallengeStore() *ResetChallengeStore {
	return &ResetChallengeStore{
		challenges: make(map[string]domain.ResetChallenge),
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *ResetChallengeStore) WithClock(clock func() time.Time) *ResetChallengeStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *ResetChallengeStore) Put(_ context.Context, challenge domain.ResetChallenge) error {
	if challenge.Email == "" {
		return errors.New("email is required")
	}
	if challenge.Code == "" {
		return errors.New("code is required")
	}

	s.mu.Lock()
	s.challenges[challenge.Email] = challenge
	s.mu.Unlock()
	return nil
}

func (s *ResetChallengeStore) Get(_ context.Context, email string) (*domain.ResetChallenge, error) {
	s.mu.RLock()
	challenge, ok := s.challenges[email]
	s.mu.RUnlock()

	if !ok {
		return nil, repository.ErrNotFound
	}
	if challenge.Expired(s.now()) {
		s.evict(email, challenge)
		return nil, repository.ErrNotFound
	}
	return &challenge, nil
}

// MarkVerified flags the challenge for email when code is the one it holds.
func (s *ResetChallengeStore) MarkVerified(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[email]
	if !ok || challenge.Expired(s.now()) {
		return repository.ErrNotFound
	}
	if code == "" || subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		return repository.ErrNotFound
	}
	challenge.Verified = true
	s.challenges[email] = challenge
	return nil
}

func (s *ResetChallengeStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	delete(s.challenges, email)
	s.mu.Unlock()
	return nil
}

// evict removes the entry only if it was not replaced after the caller read it.
func (s *ResetChallengeStore) evict(email string, seen domain.ResetChallenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.challenges[email]; ok && current == seen {
		delete(s.challenges, email)
	}
}

var _ port.ResetChallengeStore = (*ResetChallengeStore)(nil)
