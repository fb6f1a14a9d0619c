package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/metrics"
	"go.uber.org/zap"
)

type AuditEvent struct {
	Actor     string
	UserID    string
	Action    string
	Details   any
	IPAddress string
}

// AuditRecorder writes the append-only security trail.
type AuditRecorder struct {
	repo domain.AuditLogRepository
	diag *zap.Logger
	now  func() time.Time
}

// NewAuditRecorder takes the audit diagnostic logger, which receives every
// event whether or not persistence succeeds.
func NewAuditRecorder(repo domain.AuditLogRepository, diag *zap.Logger) *AuditRecorder {
	return &AuditRecorder{repo: repo, diag: diag, now: time.Now}
}

// LogEvent persists one entry. The returned error is informational: callers
// in the request path discard it through recordAudit.
func (a *AuditRecorder) LogEvent(ctx context.Context, ev AuditEvent) error {
	actor := strings.TrimSpace(ev.Actor)
	if actor == "" {
		actor = domain.SystemActor
	}

	entry := &domain.AuditLogEntry{
		Actor:     actor,
		UserID:    ev.UserID,
		Action:    ev.Action,
		Details:   ev.Details,
		IPAddress: ev.IPAddress,
		CreatedAt: a.now().UTC(),
	}

	a.diag.Info("audit",
		zap.String("actor", entry.Actor),
		zap.String("action", entry.Action),
		zap.String("user_id", entry.UserID),
		zap.String("ip", entry.IPAddress),
		zap.Any("details", entry.Details),
	)

	if err := a.repo.Create(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		return fmt.Errorf("persist audit %s: %w", ev.Action, err)
	}
	return nil
}

func (a *AuditRecorder) Recent(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	return a.repo.ListRecent(ctx, limit)
}

// recordAudit is the best-effort call site: a failed write is logged and dropped.
func recordAudit(ctx context.Context, a *AuditRecorder, log *zap.Logger, ev AuditEvent) {
	if err := a.LogEvent(ctx, ev); err != nil {
		log.Warn("audit write failed", zap.String("action", ev.Action), zap.Error(err))
	}
}
