package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
)

// PostgresAuditRepo inserts immutable records into the audit_logs table.
type PostgresAuditRepo struct {
	db *sql.DB
}

func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

func (r *PostgresAuditRepo) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (actor, user_id, action, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var details []byte
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			b, _ = json.Marshal(fmt.Sprint(entry.Details))
		}
		details = b
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	// user_id is NULL for anonymous actors such as failed logins on unknown emails.
	err := r.db.QueryRowContext(ctx, query,
		entry.Actor,
		nullString(entry.UserID),
		entry.Action,
		details,
		entry.IPAddress,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepo) ListRecent(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	query := `
		SELECT id, actor, COALESCE(user_id::text, ''), action, details, ip_address, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var (
			e       domain.AuditLogEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.UserID, &e.Action, &details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
