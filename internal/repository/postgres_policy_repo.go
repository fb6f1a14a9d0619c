package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
)

// PostgresPolicyRepo stores security policies as insert-only rows.
type PostgresPolicyRepo struct {
	db *sql.DB
}

func NewPostgresPolicyRepo(db *sql.DB) *PostgresPolicyRepo {
	return &PostgresPolicyRepo{db: db}
}

func (r *PostgresPolicyRepo) Latest(ctx context.Context) (*domain.SecurityPolicy, error) {
	query := `
		SELECT max_login_attempts, lockout_minutes, anomaly_alert_threshold,
			rate_limit_per_min, password_min_length, mfa_required, created_at
		FROM security_policies
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var p domain.SecurityPolicy
	err := r.db.QueryRowContext(ctx, query).Scan(
		&p.MaxLoginAttempts,
		&p.LockoutMinutes,
		&p.AnomalyAlertThreshold,
		&p.RateLimitPerMin,
		&p.PasswordMinLength,
		&p.MFARequired,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &p, nil
}

func (r *PostgresPolicyRepo) Create(ctx context.Context, p *domain.SecurityPolicy) error {
	query := `
		INSERT INTO security_policies (max_login_attempts, lockout_minutes, anomaly_alert_threshold,
			rate_limit_per_min, password_min_length, mfa_required, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	p.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		p.MaxLoginAttempts,
		p.LockoutMinutes,
		p.AnomalyAlertThreshold,
		p.RateLimitPerMin,
		p.PasswordMinLength,
		p.MFARequired,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store policy: %w", err)
	}
	return nil
}
