package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
const userColumns = `u.id, u.tenant_id, u.email, u.name, u.password_hash,
	u.role, u.status, u.admin_claim, u.created_at, u.last_login_at, u.deleted_at`

// scanUser scans a single user row into a types.User struct. The columns
// must match the order defined in userColumns.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var name *string

	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&name,
		&u.PasswordHash,
		&u.Role,
		&u.Status,
		&u.AdminClaim,
		&u.CreatedAt,
		&u.LastLoginAt,
		&u.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = *name
	}
	return &u, nil
}

// Create inserts a new user record. Emails are stored lowercased so lookups
// are case-insensitive. Returns ErrConflictEmail on a duplicate email.
func (r *UserRepository) Create(ctx context.Context, user *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, tenant_id, email, name, password_hash, role,
		 status, admin_claim, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		user.ID,
		user.TenantID,
		strings.ToLower(strings.TrimSpace(user.Email)),
		nilIfEmpty(user.Name),
		user.PasswordHash,
		user.Role,
		user.Status,
		user.AdminClaim,
		nilIfZeroTime(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "email already registered", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID. Excludes soft-deleted users.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.id = $1 AND u.deleted_at IS NULL`,
		id,
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively. Used by the
// login flow; the caller is responsible for enumeration-safe error mapping.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.email = $1 AND u.deleted_at IS NULL`,
		strings.ToLower(strings.TrimSpace(email)),
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return user, nil
}

// UpdateLastLogin stamps last_login_at after a successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last login", err)
	}
	return nil
}

// SetAdminClaim sets or clears the admin claim baked into the user's future
// session tokens. Existing tokens keep their old claim until they expire.
func (r *UserRepository) SetAdminClaim(ctx context.Context, id string, claim bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET admin_claim = $1 WHERE id = $2 AND deleted_at IS NULL`,
		claim,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set admin claim", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
