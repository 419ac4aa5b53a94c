package domain

import "time"

// DefaultRole is assigned to every principal created through signup.
const DefaultRole = "customer"

// AccountVisibility controls whether a profile is listed to other users.
type AccountVisibility string

const (
	VisibilityPublic  AccountVisibility = "public"
	VisibilityPrivate AccountVisibility = "private"
)

// AccountStatus tracks the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusInactive  AccountStatus = "inactive"
	StatusSuspended AccountStatus = "suspended"
)

// Principal is the persisted identity record. PasswordHash and RefreshToken never
// leave the service; use Public for anything that is serialized.
type Principal struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Username          string
	Phone             string
	Bio               string
	Address           string
	Picture           string
	Role              string
	RefreshToken      string
	Notifications     bool
	AccountVisibility AccountVisibility
	AccountStatus     AccountStatus
	CreatedAt         time.Time
}

// NewPrincipal builds a principal for a fresh signup with the account defaults applied.
// The username starts out equal to the email.
func NewPrincipal(id, email, name, phone, passwordHash string, createdAt time.Time) Principal {
	return Principal{
		ID:                id,
		Email:             email,
		PasswordHash:      passwordHash,
		Name:              name,
		Username:          email,
		Phone:             phone,
		Role:              DefaultRole,
		Notifications:     true,
		AccountVisibility: VisibilityPublic,
		AccountStatus:     StatusActive,
		CreatedAt:         createdAt.UTC(),
	}
}

// PublicPrincipal is the client-facing view of a Principal.
type PublicPrincipal struct {
	ID                string            `json:"_id"`
	Name              string            `json:"name"`
	Email             string            `json:"email"`
	Username          string            `json:"username,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	Bio               string            `json:"bio,omitempty"`
	Address           string            `json:"address,omitempty"`
	Picture           string            `json:"profilePicture,omitempty"`
	Role              string            `json:"role"`
	Notifications     bool              `json:"notifications"`
	AccountVisibility AccountVisibility `json:"accountVisibility"`
	AccountStatus     AccountStatus     `json:"accountStatus"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Public strips credential material from the principal.
func (p Principal) Public() PublicPrincipal {
	return PublicPrincipal{
		ID:                p.ID,
		Name:              p.Name,
		Email:             p.Email,
		Username:          p.Username,
		Phone:             p.Phone,
		Bio:               p.Bio,
		Address:           p.Address,
		Picture:           p.Picture,
		Role:              p.Role,
		Notifications:     p.Notifications,
		AccountVisibility: p.AccountVisibility,
		AccountStatus:     p.AccountStatus,
		CreatedAt:         p.CreatedAt,
	}
}
