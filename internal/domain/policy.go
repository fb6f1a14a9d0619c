package domain

import (
	"context"
	"fmt"
	"time"
)

// SecurityPolicy holds the lockout and anomaly tunables. Rows are insert-only;
// the newest one is authoritative.
type SecurityPolicy struct {
	MaxLoginAttempts      int       `json:"maxLoginAttempts"`
	LockoutMinutes        int       `json:"lockoutMinutes"`
	AnomalyAlertThreshold float64   `json:"anomalyAlertThreshold"`
	RateLimitPerMin       int       `json:"rateLimitPerMin"`
	PasswordMinLength     int       `json:"passwordMinLength"`
	MFARequired           bool      `json:"mfaRequired"`
	CreatedAt             time.Time `json:"createdAt,omitzero"`
}

// DefaultSecurityPolicy returns the hardcoded fallback policy.
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		MaxLoginAttempts:      5,
		LockoutMinutes:        15,
		AnomalyAlertThreshold: 0.7,
		RateLimitPerMin:       60,
		PasswordMinLength:     12,
		MFARequired:           false,
	}
}

func (p SecurityPolicy) LockoutWindow() time.Duration {
	return time.Duration(p.LockoutMinutes) * time.Minute
}

func (p SecurityPolicy) Validate() error {
	switch {
	case p.MaxLoginAttempts < 1:
		return fmt.Errorf("%w: maxLoginAttempts must be at least 1", ErrInvalidPolicy)
	case p.LockoutMinutes < 1:
		return fmt.Errorf("%w: lockoutMinutes must be at least 1", ErrInvalidPolicy)
	case p.AnomalyAlertThreshold < 0 || p.AnomalyAlertThreshold > 1:
		return fmt.Errorf("%w: anomalyAlertThreshold must be within [0,1]", ErrInvalidPolicy)
	case p.RateLimitPerMin < 1:
		return fmt.Errorf("%w: rateLimitPerMin must be at least 1", ErrInvalidPolicy)
	case p.PasswordMinLength < 8:
		return fmt.Errorf("%w: passwordMinLength must be at least 8", ErrInvalidPolicy)
	}
	return nil
}

type PolicyRepository interface {
	// Latest returns ErrNotFound when no policy has been stored.
	Latest(ctx context.Context) (*SecurityPolicy, error)
	Create(ctx context.Context, policy *SecurityPolicy) error
}
