package port

import (
	"context"

	"github.com/arklim/moodwell/internal/core/domain"
)

// PrincipalRepository is the single writer of principal records. Lookups return
// repository.ErrNotFound for unknown keys and Create returns repository.ErrConflict
// when the email is already taken.
type PrincipalRepository interface {
	Create(ctx context.Context, principal domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error
}
