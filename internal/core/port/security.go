package port

import "github.com/arklim/moodwell/internal/core/domain"

// PasswordHasher hashes and checks credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// TokenIssuer mints and verifies the signed credentials handed to clients.
// Verification errors wrap domain.ErrTokenExpired or domain.ErrTokenInvalid.
type TokenIssuer interface {
	Mint(principal domain.Principal) (domain.TokenPair, error)
	MintAccess(principal domain.Principal) (string, error)
	VerifyAccess(token string) (domain.TokenSubject, error)
	VerifyRefresh(token string) (domain.TokenSubject, error)
}

// ResetCodeGenerator produces one-time reset codes.
type ResetCodeGenerator interface {
	NewResetCode() (string, error)
}
