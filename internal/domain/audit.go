package domain

import (
	"context"
	"time"
)

const (
	ActionRegister        = "REGISTER"
	ActionLogin           = "LOGIN"
	ActionLoginFailed     = "LOGIN_FAILED"
	ActionLoginBlocked    = "LOGIN_BLOCKED"
	ActionLogout          = "LOGOUT"
	ActionAccountLocked   = "ACCOUNT_LOCKED"
	ActionAccountUnlocked = "ACCOUNT_UNLOCKED"
	ActionAIAlert         = "AI_ALERT"
	ActionChangePassword  = "CHANGE_PASSWORD"
	ActionPolicyUpdated   = "POLICY_UPDATED"
	ActionMFAEnabled      = "MFA_ENABLED"
)

// SystemActor is recorded when an audit event has no acting user.
const SystemActor = "system"

// AuditLogEntry is an append-only trail entry. Details is a string or a
// JSON-compatible structure.
type AuditLogEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	UserID    string    `json:"userId,omitempty"`
	Action    string    `json:"action"`
	Details   any       `json:"details,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *AuditLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]AuditLogEntry, error)
}
