package domain

import (
	"context"
	"time"
)

// Failure reason tags stored in LoginEvent metadata.
const (
	ReasonAccountDisabled    = "ACCOUNT_DISABLED"
	ReasonLockoutThreshold   = "LOCKOUT_THRESHOLD"
	ReasonInvalidCredentials = "INVALID_CREDENTIALS"
	ReasonInvalidMFACode     = "INVALID_MFA_CODE"
)

// LoginEvent is one immutable login attempt. UserID is empty when the
// email did not resolve to an account.
type LoginEvent struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	Email     string         `json:"email"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent"`
	Success   bool           `json:"success"`
	Anomaly   float64        `json:"anomaly"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Alert is a login event surfaced to admins.
type Alert struct {
	LoginEvent
	Severity string   `json:"severity"`
	Reasons  []string `json:"reasons"`
}

// LoginEventRepository is append-only.
type LoginEventRepository interface {
	Create(ctx context.Context, event *LoginEvent) error
	// CountFailuresSince counts failed attempts for email created at or after since.
	CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error)
	// ListRecent returns newest first; a zero since means no lower bound.
	ListRecent(ctx context.Context, since time.Time, limit int) ([]LoginEvent, error)
}
