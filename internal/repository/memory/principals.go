package memory

import (
	"context"
	"sync"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/repository"
)

// PrincipalRepository is an in-process credential store for local runs and tests.
type PrincipalRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.Principal
	byEmail map[string]string
}

// NewPrincipalRepository returns an empty repository.
func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{
		byID:    make(map[string]domain.Principal),
		byEmail: make(map[string]string),
	}
}

func (r *PrincipalRepository) Create(_ context.Context, p domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[p.Email]; taken {
		return repository.ErrConflict
	}
	if _, taken := r.byID[p.ID]; taken {
		return repository.ErrConflict
	}

	r.byID[p.ID] = p
	r.byEmail[p.Email] = p.ID
	return nil
}

func (r *PrincipalRepository) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()

	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *PrincipalRepository) SetRefreshToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.RefreshToken = token
	r.byID[id] = p
	return nil
}

func (r *PrincipalRepository) UpdatePasswordByEmail(_ context.Context, email, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return repository.ErrNotFound
	}
	p := r.byID[id]
	p.PasswordHash = passwordHash
	r.byID[id] = p
	return nil
}

// Update replaces a stored principal wholesale. Profile edits live in another
// service, so this exists for tests and local tooling.
func (r *PrincipalRepository) Update(_ context.Context, p domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Email != p.Email {
		if _, taken := r.byEmail[p.Email]; taken {
			return repository.ErrConflict
		}
		delete(r.byEmail, current.Email)
		r.byEmail[p.Email] = p.ID
	}
	r.byID[p.ID] = p
	return nil
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
