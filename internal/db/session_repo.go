package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// SessionRepository provides data access for the sessions table.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, tenant_id, user_agent, ip_address,
		 expires_at, last_activity_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($8, NOW()))`,
		session.ID,
		session.UserID,
		session.TenantID,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		nilIfZeroTime(session.LastActivityAt),
		nilIfZeroTime(session.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByID retrieves a session by ID. Expired sessions are returned as
// ErrAuthSessionExpired so the middleware can distinguish "log in again"
// from "no such session".
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, tenant_id, user_agent, ip_address,
		 expires_at, last_activity_at, created_at
		 FROM sessions
		 WHERE id = $1`,
		id,
	).Scan(
		&s.ID,
		&s.UserID,
		&s.TenantID,
		&s.UserAgent,
		&s.IPAddress,
		&s.ExpiresAt,
		&s.LastActivityAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	return &s, nil
}

// Touch updates last_activity_at on a session. Failures are non-fatal to the
// request; the caller logs and continues.
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_activity_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to touch session", err)
	}
	return nil
}

// Delete removes a session (logout). Deleting an absent session is a no-op.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired removes all sessions past their expiry and returns the count.
// Called by the maintenance sweep.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < NOW()`,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
