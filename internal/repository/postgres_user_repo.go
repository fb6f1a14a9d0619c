package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/pkg/fieldcrypt"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, role, status, phone, address, date_of_birth,
		mfa_enabled, mfa_secret, metadata, last_login_at, lockout_reset_at, created_at, updated_at`

// PostgresUserRepo implements domain.UserRepository using PostgreSQL.
// PII columns are JSONB and hold either a legacy string or an envelope.
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo creates a new repository instance.
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		metadata  []byte
		lastLogin sql.NullTime
		resetAt   sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Status,
		&u.Phone,
		&u.Address,
		&u.DateOfBirth,
		&u.MFAEnabled,
		&u.MFASecret,
		&metadata,
		&lastLogin,
		&resetAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &u.Metadata); err != nil {
			return nil, fmt.Errorf("decode user metadata: %w", err)
		}
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	if resetAt.Valid {
		t := resetAt.Time
		u.LockoutResetAt = &t
	}
	return &u, nil
}

// GetByEmail expects an already normalized email.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return exists, nil
}

// Create inserts a new user. The unique email index is the backstop for
// concurrent registrations and maps to domain.ErrEmailTaken.
func (r *PostgresUserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, status, phone, address, date_of_birth,
			mfa_enabled, mfa_secret, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	metadata, err := marshalJSONMap(user.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Status,
		user.Phone,
		user.Address,
		user.DateOfBirth,
		user.MFAEnabled,
		user.MFASecret,
		metadata,
		now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) List(ctx context.Context, limit int) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateStatus is idempotent: setting the current status again changes no row
// and reports false. Leaving DISABLED stamps lockout_reset_at so failures
// recorded before the unlock no longer count. The stamp is the caller's
// clock, the same one that timestamps login events.
func (r *PostgresUserRepo) UpdateStatus(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error) {
	query := `
		UPDATE users
		SET status = $2,
			lockout_reset_at = CASE WHEN $2 = 'DISABLED' THEN lockout_reset_at ELSE $3 END,
			updated_at = $3
		WHERE id = $1 AND status <> $2
	`

	result, err := r.db.ExecContext(ctx, query, id, status, at)
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return rows > 0, nil
}

func (r *PostgresUserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET last_login_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// UpdateMFA modifies an existing user's MFA status and secret.
func (r *PostgresUserRepo) UpdateMFA(ctx context.Context, id string, enabled bool, secret fieldcrypt.Value) error {
	return r.execOne(ctx, `UPDATE users SET mfa_enabled = $2, mfa_secret = $3, updated_at = NOW() WHERE id = $1`, id, enabled, secret)
}

func (r *PostgresUserRepo) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func marshalJSONMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
