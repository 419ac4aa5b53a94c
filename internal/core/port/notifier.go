package port

import "context"

// ResetCodeNotifier delivers a password reset code to the account owner.
type ResetCodeNotifier interface {
	SendResetCode(ctx context.Context, email, code string) error
}
