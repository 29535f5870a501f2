package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository persists accounts and the active refresh-token set in Postgres.
// Every account mutation is a single conditional statement so concurrent
// requests for the same account cannot interleave into an inconsistent state.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `
	id, email, name, password_hash, password_history, credits,
	failed_login_attempts, locked_until, password_changed_at, password_strength,
	operation_count, last_login_at, login_count, is_active, email_verified,
	created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var (
		user        User
		history     []byte
		lockedUntil sql.NullTime
		pwChangedAt sql.NullTime
		lastLoginAt sql.NullTime
	)

	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &history, &user.Credits,
		&user.FailedLoginAttempts, &lockedUntil, &pwChangedAt, &user.PasswordStrength,
		&user.OperationCount, &lastLoginAt, &user.LoginCount, &user.IsActive, &user.EmailVerified,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &user.PasswordHistory); err != nil {
			return nil, fmt.Errorf("decode password history: %w", err)
		}
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		user.LockedUntil = &value
	}
	if pwChangedAt.Valid {
		value := pwChangedAt.Time.UTC()
		user.PasswordChangedAt = &value
	}
	if lastLoginAt.Valid {
		value := lastLoginAt.Time.UTC()
		user.LastLoginAt = &value
	}

	return &user, nil
}

// CreateUser inserts a new account. The email uniqueness constraint reports
// a duplicate as ErrEmailTaken, including under concurrent signup races.
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}
	user.ID = id.String()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, name, password_hash, password_history, credits,
			password_changed_at, password_strength, is_active,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $6, $7, TRUE, $8, $8)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.Credits, now, user.PasswordStrength, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	user.IsActive = true
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

// ClearExpiredLockout lazily resets lockout state once the expiry has passed.
// The predicate makes this a no-op while the lock is still active.
func (r *Repository) ClearExpiredLockout(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND locked_until IS NOT NULL AND locked_until <= NOW()
	`, userID)
	if err != nil {
		return fmt.Errorf("clear expired lockout: %w", err)
	}

	return nil
}

// RecordFailedLogin counts one failed attempt atomically and arms the lockout
// once the threshold is reached. Concurrent failures are all counted because
// the increment happens in the statement, not in a read-modify-write cycle.
func (r *Repository) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	lockUntil := time.Now().UTC().Add(lockout)

	var (
		failed      int
		lockedUntil sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE
				WHEN failed_login_attempts + 1 >= $2 THEN $3
				ELSE locked_until
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`, userID, maxAttempts, lockUntil).Scan(&failed, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrUserNotFound
		}
		return 0, nil, fmt.Errorf("record failed login: %w", err)
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		return failed, &value, nil
	}

	return failed, nil, nil
}

// RecordLogin clears failure state and refreshes login statistics.
func (r *Repository) RecordLogin(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0,
			locked_until = NULL,
			last_login_at = NOW(),
			login_count = login_count + 1,
			operation_count = operation_count + 1,
			updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	return nil
}

// AddRefreshToken registers a refresh jti into the account's active set.
func (r *Repository) AddRefreshToken(ctx context.Context, userID, jti string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (jti, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, jti, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// RotateRefreshToken swaps oldJTI for newJTI in one transaction. A missing or
// foreign old jti reports ErrRefreshRevoked; there is no window where both or
// neither jti is honored.
func (r *Repository) RotateRefreshToken(ctx context.Context, userID, oldJTI, newJTI string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh rotation tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM auth_refresh_tokens
		WHERE jti = $1 AND user_id = $2
	`, oldJTI, userID)
	if err != nil {
		return fmt.Errorf("remove rotated refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotated refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRefreshRevoked
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (jti, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, newJTI, userID, expiresAt.UTC()); err != nil {
		return fmt.Errorf("insert rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh rotation tx: %w", err)
	}

	return nil
}

// RevokeRefreshToken removes one jti from the account's active set.
// Idempotent: revoking an absent jti is a no-op.
func (r *Repository) RevokeRefreshToken(ctx context.Context, userID, jti string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_refresh_tokens
		WHERE jti = $1 AND user_id = $2
	`, jti, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeAllRefreshTokens clears the account's entire active set (global
// logout). Idempotent.
func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_refresh_tokens
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}

	return nil
}

func (r *Repository) GetCredits(ctx context.Context, userID string) (int, error) {
	var credits int
	err := r.db.QueryRowContext(ctx,
		`SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("query credits: %w", err)
	}

	return credits, nil
}

// DeductCredits spends cost atomically. The balance predicate guarantees the
// balance never goes negative; an insufficient balance leaves it unchanged
// and reports ok=false with the current balance.
func (r *Repository) DeductCredits(ctx context.Context, userID string, cost int) (int, bool, error) {
	var balance int
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET credits = credits - $2,
			operation_count = operation_count + 1,
			updated_at = NOW()
		WHERE id = $1 AND credits >= $2
		RETURNING credits
	`, userID, cost).Scan(&balance)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("deduct credits: %w", err)
	}

	current, err := r.GetCredits(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	return current, false, nil
}

// AddCredits grants credits unconditionally for an existing account.
func (r *Repository) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits
	`, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("add credits: %w", err)
	}

	return balance, nil
}

// UpdateProfile writes the whitelisted mutable fields and returns the updated
// row, or ErrUserNotFound when nothing matched.
func (r *Repository) UpdateProfile(ctx context.Context, userID, name string) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		userID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return user, nil
}

// SessionIDs lists the user's active interview-session IDs for the profile
// payload, most recently updated first.
func (r *Repository) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM interview_sessions
		WHERE user_id = $1 AND is_active
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session ids: %w", err)
	}

	return ids, nil
}

// DeleteExpiredRefreshTokens prunes jtis past their natural expiry, in
// batches, for the maintenance endpoint.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT jti
			FROM auth_refresh_tokens
			WHERE expires_at < NOW()
			ORDER BY created_at ASC
			LIMIT $1
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.jti = stale.jti
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}
