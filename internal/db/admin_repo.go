package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// AdminDirectoryRepo provides data access for the system_admins table, the
// operations-managed directory of platform administrators. A directory entry
// authorizes its subject only while active is true; revocation is a flag
// flip, not a row deletion, so the audit trail survives.
type AdminDirectoryRepo struct {
	db DBTX
}

// NewAdminDirectoryRepo creates a new AdminDirectoryRepo backed by the given
// database connection (pool or transaction).
func NewAdminDirectoryRepo(db DBTX) *AdminDirectoryRepo {
	return &AdminDirectoryRepo{db: db}
}

// GetByUID retrieves a directory entry by subject UID. Returns
// ErrNotFoundAdmin if no entry exists; the caller decides how an inactive
// entry is treated.
func (r *AdminDirectoryRepo) GetByUID(ctx context.Context, uid string) (*types.AdminRecord, error) {
	var rec types.AdminRecord
	err := r.db.QueryRow(ctx,
		`SELECT uid, email, active, created_at
		 FROM system_admins
		 WHERE uid = $1`,
		uid,
	).Scan(&rec.UID, &rec.Email, &rec.Active, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAdmin, "admin record not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve admin record", err)
	}
	return &rec, nil
}

// GetByEmail retrieves a directory entry by email, case-insensitively.
func (r *AdminDirectoryRepo) GetByEmail(ctx context.Context, email string) (*types.AdminRecord, error) {
	var rec types.AdminRecord
	err := r.db.QueryRow(ctx,
		`SELECT uid, email, active, created_at
		 FROM system_admins
		 WHERE LOWER(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&rec.UID, &rec.Email, &rec.Active, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAdmin, "admin record not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve admin record", err)
	}
	return &rec, nil
}

// Upsert inserts or reactivates a directory entry. The bootstrap endpoint
// calls this to grant the first administrator; subsequent grants go through
// the same path so re-granting a revoked admin simply flips active back on.
func (r *AdminDirectoryRepo) Upsert(ctx context.Context, rec *types.AdminRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO system_admins (uid, email, active, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (uid) DO UPDATE
		   SET email = EXCLUDED.email,
		       active = EXCLUDED.active`,
		rec.UID,
		strings.ToLower(strings.TrimSpace(rec.Email)),
		rec.Active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert admin record", err)
	}
	return nil
}

// SetActive flips the active flag for a directory entry. Deactivation takes
// effect on the subject's next admin-gated request.
func (r *AdminDirectoryRepo) SetActive(ctx context.Context, uid string, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE system_admins SET active = $1 WHERE uid = $2`,
		active,
		uid,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update admin record", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAdmin, "admin record not found", nil)
	}
	return nil
}
