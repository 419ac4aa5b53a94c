package port

import (
	"context"

	"github.com/arklim/moodwell/internal/core/domain"
)

// ResetChallengeStore keeps at most one pending challenge per email. Put overwrites,
// expired challenges behave as missing. MarkVerified compares and flags in one
// step: a missing, expired or different code yields repository.ErrNotFound.
type ResetChallengeStore interface {
	Put(ctx context.Context, challenge domain.ResetChallenge) error
	Get(ctx context.Context, email string) (*domain.ResetChallenge, error)
	MarkVerified(ctx context.Context, email, code string) error
	Delete(ctx context.Context, email string) error
}
