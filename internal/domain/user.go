package domain

import (
	"context"
	"strings"
	"time"

	"github.com/FilipeAphrody/secure-wallet/pkg/fieldcrypt"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Status is the account state driven by registration, the lockout guard and admins.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
	StatusPending  Status = "PENDING"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDisabled || s == StatusPending
}

// UserNamespace is bound into the AAD of every encrypted user field.
const UserNamespace = "users"

// User represents the central identity entity of the system.
// PII fields are stored as plaintext (legacy) or as encrypted envelopes.
type User struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"` // Never expose the password hash in JSON
	Role         Role             `json:"role"`
	Status       Status           `json:"status"`
	Phone        fieldcrypt.Value `json:"phone,omitzero"`
	Address      fieldcrypt.Value `json:"address,omitzero"`
	DateOfBirth  fieldcrypt.Value `json:"dateOfBirth,omitzero"`
	MFAEnabled   bool             `json:"mfaEnabled"`
	MFASecret    fieldcrypt.Value `json:"-"` // TOTP secret, encrypted at rest
	Metadata     map[string]any   `json:"metadata,omitempty"`
	LastLoginAt  *time.Time       `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`

	// LockoutResetAt is stamped when the account leaves DISABLED.
	LockoutResetAt *time.Time `json:"-"`
}

// PIIFields maps storage field names to the user's encrypted-at-rest values.
func (u *User) PIIFields() map[string]*fieldcrypt.Value {
	return map[string]*fieldcrypt.Value{
		"phone":         &u.Phone,
		"address":       &u.Address,
		"date_of_birth": &u.DateOfBirth,
	}
}

// NormalizeEmail trims and lowercases an email before any lookup or write.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository defines the contract for user data persistence.
// Lookups return ErrNotFound when no row matches.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Create assigns ID and timestamps. A duplicate email yields ErrEmailTaken.
	Create(ctx context.Context, user *User) error
	List(ctx context.Context, limit int) ([]User, error)
	// UpdateStatus reports whether the stored status actually changed.
	// Leaving DISABLED sets LockoutResetAt to at.
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) (bool, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateMFA(ctx context.Context, id string, enabled bool, secret fieldcrypt.Value) error
}
