package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// PlanRepository provides data access for the plans table. Plans are written
// almost exclusively by the catalog sync operation; reads happen on every
// entitlement evaluation, so the column set is kept narrow.
type PlanRepository struct {
	db DBTX
}

// NewPlanRepository creates a new PlanRepository backed by the given database
// connection (pool or transaction).
func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

// planColumns defines the standard set of columns selected for plan queries.
// Used consistently across all query methods to avoid column drift.
const planColumns = `p.id, p.name, p.description, p.price_cents, p.duration_days,
	p.features, p.is_featured, p.status, p.created_at, p.updated_at`

// scanPlan scans a single plan row into a types.Plan struct. The columns must
// match the order defined in planColumns. The features column is a text[]
// holding feature flag tokens.
func scanPlan(row pgx.Row) (*types.Plan, error) {
	var plan types.Plan
	var features []string

	err := row.Scan(
		&plan.ID,
		&plan.Name,
		&plan.Description,
		&plan.PriceCents,
		&plan.DurationDays,
		&features,
		&plan.IsFeatured,
		&plan.Status,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	plan.Features = make([]types.FeatureFlag, 0, len(features))
	for _, f := range features {
		plan.Features = append(plan.Features, types.FeatureFlag(f))
	}
	return &plan, nil
}

// featureTokens converts a feature flag slice to plain strings for the
// text[] column parameter.
func featureTokens(features []types.FeatureFlag) []string {
	tokens := make([]string, 0, len(features))
	for _, f := range features {
		tokens = append(tokens, string(f))
	}
	return tokens
}

// Upsert inserts or replaces a plan definition by ID. The catalog sync calls
// this once per reference plan; existing rows are fully overwritten so edits
// to the reference definitions converge on every sync run.
func (r *PlanRepository) Upsert(ctx context.Context, plan *types.Plan) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plans (id, name, description, price_cents, duration_days,
		 features, is_featured, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), NOW())
		 ON CONFLICT (id) DO UPDATE
		   SET name = EXCLUDED.name,
		       description = EXCLUDED.description,
		       price_cents = EXCLUDED.price_cents,
		       duration_days = EXCLUDED.duration_days,
		       features = EXCLUDED.features,
		       is_featured = EXCLUDED.is_featured,
		       status = EXCLUDED.status,
		       updated_at = NOW()`,
		plan.ID,
		plan.Name,
		plan.Description,
		plan.PriceCents,
		plan.DurationDays,
		featureTokens(plan.Features),
		plan.IsFeatured,
		plan.Status,
		nilIfZeroTime(plan.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert plan", err)
	}
	return nil
}

// GetByID retrieves a plan by its ID regardless of status. Callers that must
// not see deprecated plans filter on Status themselves; entitlement
// evaluation needs deprecated plans to keep resolving for tenants still
// assigned to them.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*types.Plan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+`
		 FROM plans p
		 WHERE p.id = $1`,
		id,
	)

	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve plan", err)
	}
	return plan, nil
}

// ListByStatus retrieves all plans with the given status, ordered by price
// ascending then ID for a stable listing.
func (r *PlanRepository) ListByStatus(ctx context.Context, status types.PlanStatus) ([]*types.Plan, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+planColumns+`
		 FROM plans p
		 WHERE p.status = $1
		 ORDER BY p.price_cents ASC, p.id ASC`,
		status,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plans", err)
	}
	defer rows.Close()

	var plans []*types.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan row", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating plan rows", err)
	}
	return plans, nil
}

// CountAssignedTenants returns the number of non-deleted tenants currently
// assigned to the plan. The catalog sync consults this before removing a
// deprecated plan ID so that no tenant is ever left pointing at a missing row.
func (r *PlanRepository) CountAssignedTenants(ctx context.Context, planID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM tenants
		 WHERE plan_id = $1
		   AND deleted_at IS NULL`,
		planID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count assigned tenants", err)
	}
	return count, nil
}

// Delete removes a plan row. Only the catalog sync calls this, and only for
// deprecated plan IDs with zero assigned tenants.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM plans WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return nil
}
