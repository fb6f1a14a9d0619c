package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/pkg/fieldcrypt"
	"go.uber.org/zap"
)

const (
	maxUserList = 200

	defaultEventLimit = 50
	maxEventLimit     = 200

	defaultAuditLimit = 100
	maxAuditLimit     = 300

	alertWindow = 24 * time.Hour
	alertLimit  = 100

	demoBruteForceEmail    = "bruteforce@example.com"
	demoBruteForceAttempts = 6
	demoUnusualEmail       = "anomaly@example.com"
	demoUnusualIP          = "203.0.113.42"
	demoUnusualUserAgent   = "UnknownDevice/1.0"
)

// Actor is the authenticated admin performing an operation.
type Actor struct {
	Email string
	IP    string
}

type AdminUsecase struct {
	users    domain.UserRepository
	ledger   *LoginLedger
	guard    *LockoutGuard
	audit    *AuditRecorder
	policies *PolicyProvider
	codec    *fieldcrypt.Codec
	log      *zap.Logger
	now      func() time.Time
}

func NewAdminUsecase(users domain.UserRepository, ledger *LoginLedger, guard *LockoutGuard, audit *AuditRecorder, policies *PolicyProvider, codec *fieldcrypt.Codec, log *zap.Logger) *AdminUsecase {
	return &AdminUsecase{
		users:    users,
		ledger:   ledger,
		guard:    guard,
		audit:    audit,
		policies: policies,
		codec:    codec,
		log:      log,
		now:      time.Now,
	}
}

func clampLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}

func (a *AdminUsecase) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := a.users.List(ctx, maxUserList)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(users))
	for i := range users {
		view, err := presentUser(a.codec, &users[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// UpdateUserStatus applies a manual status change. Disabling goes through
// the lockout guard so it is audited like an automatic lock.
func (a *AdminUsecase) UpdateUserStatus(ctx context.Context, actor Actor, id string, status domain.Status, reason string) (*domain.User, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if strings.TrimSpace(reason) == "" {
		reason = "manual update"
	}

	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if status == domain.StatusDisabled {
		err = a.guard.Lock(ctx, user, actor.Email, reason, actor.IP)
	} else {
		err = a.guard.Unlock(ctx, user, status, actor.Email, reason, actor.IP)
	}
	if err != nil {
		return nil, err
	}
	return presentUser(a.codec, user)
}

func (a *AdminUsecase) ListLoginEvents(ctx context.Context, limit int) ([]domain.LoginEvent, error) {
	return a.ledger.Recent(ctx, time.Time{}, clampLimit(limit, defaultEventLimit, maxEventLimit))
}

// ListAlerts returns the last day's failed or high-anomaly attempts.
func (a *AdminUsecase) ListAlerts(ctx context.Context) ([]domain.Alert, error) {
	policy := a.policies.GetPolicy(ctx)
	events, err := a.ledger.Recent(ctx, a.now().Add(-alertWindow), alertLimit)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.Alert, 0, len(events))
	for _, ev := range events {
		highAnomaly := ev.Anomaly >= policy.AnomalyAlertThreshold
		if ev.Success && !highAnomaly {
			continue
		}

		var reasons []string
		if !ev.Success {
			reasons = append(reasons, "Failed login")
		}
		if highAnomaly {
			reasons = append(reasons, "High anomaly score")
		}
		if ev.UserAgent == "" || strings.EqualFold(ev.UserAgent, "unknown") {
			reasons = append(reasons, "Unknown device")
		}
		if ev.IPAddress == "" {
			reasons = append(reasons, "Missing IP address")
		}

		severity := "medium"
		if !ev.Success {
			severity = "high"
		}
		alerts = append(alerts, domain.Alert{LoginEvent: ev, Severity: severity, Reasons: reasons})
	}
	return alerts, nil
}

func (a *AdminUsecase) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	return a.audit.Recent(ctx, clampLimit(limit, defaultAuditLimit, maxAuditLimit))
}

func (a *AdminUsecase) GetPolicy(ctx context.Context) domain.SecurityPolicy {
	return a.policies.GetPolicy(ctx)
}

func (a *AdminUsecase) UpdatePolicy(ctx context.Context, actor Actor, patch PolicyPatch) (domain.SecurityPolicy, error) {
	policy, err := a.policies.Update(ctx, patch)
	if err != nil {
		return domain.SecurityPolicy{}, err
	}
	recordAudit(ctx, a.audit, a.log, AuditEvent{
		Actor:     actor.Email,
		Action:    domain.ActionPolicyUpdated,
		Details:   policy,
		IPAddress: actor.IP,
	})
	return policy, nil
}

// SimulateBruteForce seeds a burst of failed attempts and locks the target
// account if it exists. It returns the number of events written.
func (a *AdminUsecase) SimulateBruteForce(ctx context.Context, actor Actor, email string) (int, string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		email = demoBruteForceEmail
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, email, err
	}

	inserted := 0
	for i := 0; i < demoBruteForceAttempts; i++ {
		ev := &domain.LoginEvent{
			UserID:    userID(user),
			Email:     email,
			IPAddress: fmt.Sprintf("10.0.0.%d", i+10),
			UserAgent: "demo-script",
			Success:   false,
			Anomaly:   0.8,
			Metadata:  map[string]any{"scenario": "bruteforce"},
		}
		if err := a.ledger.Record(ctx, ev); err != nil {
			return inserted, email, err
		}
		inserted++
	}

	if user != nil {
		if err := a.guard.Lock(ctx, user, actor.Email, LockReasonDemo, actor.IP); err != nil {
			return inserted, email, err
		}
	}
	return inserted, email, nil
}

type UnusualLoginInput struct {
	Email     string
	IPAddress string
	UserAgent string
}

func (a *AdminUsecase) SimulateUnusualLogin(ctx context.Context, actor Actor, in UnusualLoginInput) (string, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		email = demoUnusualEmail
	}
	ip := in.IPAddress
	if ip == "" {
		ip = demoUnusualIP
	}
	ua := in.UserAgent
	if ua == "" {
		ua = demoUnusualUserAgent
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return email, err
	}

	reasons := []string{"new device", "geo mismatch"}
	ev := &domain.LoginEvent{
		UserID:    userID(user),
		Email:     email,
		IPAddress: ip,
		UserAgent: ua,
		Success:   true,
		Anomaly:   0.92,
		Metadata:  map[string]any{"scenario": "unusual-device", "reasons": reasons},
	}
	if err := a.ledger.Record(ctx, ev); err != nil {
		return email, err
	}

	recordAudit(ctx, a.audit, a.log, AuditEvent{
		Actor:     actor.Email,
		UserID:    userID(user),
		Action:    domain.ActionAIAlert,
		Details:   map[string]any{"score": ev.Anomaly, "reasons": reasons, "email": email},
		IPAddress: ip,
	})
	return email, nil
}
