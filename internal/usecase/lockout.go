package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/metrics"
	"go.uber.org/zap"
)

// Lock reasons recorded in the audit trail.
const (
	LockReasonPreCheck  = "Too many failed attempts"
	LockReasonPostCheck = "Exceeded failed attempts"
	LockReasonDemo      = "Demo brute force lock"
)

// LockoutGuard moves accounts between ACTIVE and DISABLED based on the
// login ledger. Lock and Unlock are idempotent and only audit a transition
// that actually changed the stored status.
type LockoutGuard struct {
	ledger *LoginLedger
	users  domain.UserRepository
	audit  *AuditRecorder
	log    *zap.Logger
	now    func() time.Time
}

func NewLockoutGuard(ledger *LoginLedger, users domain.UserRepository, audit *AuditRecorder, log *zap.Logger) *LockoutGuard {
	return &LockoutGuard{ledger: ledger, users: users, audit: audit, log: log, now: time.Now}
}

// failures counts failed attempts inside the policy window. For a known user
// the window never reaches back past the last unlock.
func (g *LockoutGuard) failures(ctx context.Context, email string, user *domain.User, policy domain.SecurityPolicy) (int, error) {
	since := g.now().Add(-policy.LockoutWindow())
	if user != nil && user.LockoutResetAt != nil && user.LockoutResetAt.After(since) {
		since = *user.LockoutResetAt
	}
	n, err := g.ledger.CountFailuresSince(ctx, email, since)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// PreCheck rejects with ErrTooManyAttempts when the email is already at or
// over the threshold, disabling the account if it exists.
func (g *LockoutGuard) PreCheck(ctx context.Context, email string, user *domain.User, policy domain.SecurityPolicy, ip string) error {
	failed, err := g.failures(ctx, email, user, policy)
	if err != nil {
		return err
	}
	if failed < policy.MaxLoginAttempts {
		return nil
	}
	if user != nil {
		if err := g.Lock(ctx, user, domain.SystemActor, LockReasonPreCheck, ip); err != nil {
			g.log.Error("lockout flip failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return domain.ErrTooManyAttempts
}

// PostCheck runs after a failed verification has been recorded. It reports
// whether the attempt crossed the threshold, disabling the account if so.
func (g *LockoutGuard) PostCheck(ctx context.Context, email string, user *domain.User, policy domain.SecurityPolicy, ip string) (bool, error) {
	failed, err := g.failures(ctx, email, user, policy)
	if err != nil {
		return false, err
	}
	if failed < policy.MaxLoginAttempts {
		return false, nil
	}
	if user != nil {
		if err := g.Lock(ctx, user, domain.SystemActor, LockReasonPostCheck, ip); err != nil {
			g.log.Error("lockout flip failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return true, nil
}

// Lock disables the account and audits ACCOUNT_LOCKED.
func (g *LockoutGuard) Lock(ctx context.Context, user *domain.User, actor, reason, ip string) error {
	changed, err := g.users.UpdateStatus(ctx, user.ID, domain.StatusDisabled, g.now().UTC())
	if err != nil {
		return err
	}
	user.Status = domain.StatusDisabled
	if !changed {
		return nil
	}

	metrics.AccountLockoutsTotal.WithLabelValues(reason).Inc()
	recordAudit(ctx, g.audit, g.log, AuditEvent{
		Actor:     actor,
		UserID:    user.ID,
		Action:    domain.ActionAccountLocked,
		Details:   reason,
		IPAddress: ip,
	})
	return nil
}

// Unlock moves a DISABLED account back to status (ACTIVE or PENDING) and
// audits ACCOUNT_UNLOCKED.
func (g *LockoutGuard) Unlock(ctx context.Context, user *domain.User, status domain.Status, actor, reason, ip string) error {
	if status == domain.StatusDisabled || !status.Valid() {
		return domain.ErrInvalidStatus
	}
	now := g.now().UTC()
	changed, err := g.users.UpdateStatus(ctx, user.ID, status, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	user.Status = status
	user.LockoutResetAt = &now

	recordAudit(ctx, g.audit, g.log, AuditEvent{
		Actor:     actor,
		UserID:    user.ID,
		Action:    domain.ActionAccountUnlocked,
		Details:   reason,
		IPAddress: ip,
	})
	return nil
}
