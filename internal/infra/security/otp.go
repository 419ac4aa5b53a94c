package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

const (
	resetCodeMin  = 100000
	resetCodeSpan = 900000
)

// ResetCodeGenerator draws six digit reset codes from crypto/rand.
type ResetCodeGenerator struct{}

// NewResetCode returns a code uniformly distributed over 100000..999999.
func (ResetCodeGenerator) NewResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeSpan))
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+resetCodeMin, 10), nil
}
