package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
)

// PostgresLoginEventRepo is the append-only login ledger. It never updates or deletes rows.
type PostgresLoginEventRepo struct {
	db *sql.DB
}

func NewPostgresLoginEventRepo(db *sql.DB) *PostgresLoginEventRepo {
	return &PostgresLoginEventRepo{db: db}
}

func (r *PostgresLoginEventRepo) Create(ctx context.Context, event *domain.LoginEvent) error {
	query := `
		INSERT INTO login_events (user_id, email, ip_address, user_agent, success, anomaly, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	metadata, err := marshalJSONMap(event.Metadata)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, query,
		nullString(event.UserID),
		event.Email,
		event.IPAddress,
		event.UserAgent,
		event.Success,
		event.Anomaly,
		metadata,
		event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to record login event: %w", err)
	}
	return nil
}

// CountFailuresSince is inclusive of the window boundary.
func (r *PostgresLoginEventRepo) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_events
		WHERE email = $1 AND success = FALSE AND created_at >= $2
	`

	var n int
	if err := r.db.QueryRowContext(ctx, query, email, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return n, nil
}

func (r *PostgresLoginEventRepo) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.LoginEvent, error) {
	query := `
		SELECT id, COALESCE(user_id::text, ''), email, ip_address, user_agent, success, anomaly, metadata, created_at
		FROM login_events
		WHERE created_at >= $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var events []domain.LoginEvent
	for rows.Next() {
		var (
			e        domain.LoginEvent
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &e.IPAddress, &e.UserAgent, &e.Success, &e.Anomaly, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan login event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode login event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
