package usecase

import (
	"context"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
)

// LoginLedger records login attempts and answers brute-force questions.
// Counts are always recomputed from storage.
type LoginLedger struct {
	repo domain.LoginEventRepository
	now  func() time.Time
}

func NewLoginLedger(repo domain.LoginEventRepository) *LoginLedger {
	return &LoginLedger{repo: repo, now: time.Now}
}

// Record appends one event, stamping the creation time if absent.
func (l *LoginLedger) Record(ctx context.Context, event *domain.LoginEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now().UTC()
	}
	return l.repo.Create(ctx, event)
}

// CountRecentFailures counts failures for email within [now-windowMinutes, now].
func (l *LoginLedger) CountRecentFailures(ctx context.Context, email string, windowMinutes int) (int, error) {
	since := l.now().Add(-time.Duration(windowMinutes) * time.Minute)
	return l.repo.CountFailuresSince(ctx, email, since)
}

func (l *LoginLedger) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	return l.repo.CountFailuresSince(ctx, email, since)
}

func (l *LoginLedger) Recent(ctx context.Context, since time.Time, limit int) ([]domain.LoginEvent, error) {
	return l.repo.ListRecent(ctx, since, limit)
}
