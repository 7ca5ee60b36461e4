// Package catalog manages the subscription plan catalog: the authoritative
// reference definitions, the database-backed read path, and the
// administrative sync that converges the table onto the reference.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"agendly/internal/types"
)

// PlanStore is the catalog's view of the plans table.
type PlanStore interface {
	Upsert(ctx context.Context, plan *types.Plan) error
	GetByID(ctx context.Context, id string) (*types.Plan, error)
	ListByStatus(ctx context.Context, status types.PlanStatus) ([]*types.Plan, error)
	CountAssignedTenants(ctx context.Context, planID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// SyncResult summarizes one SyncPlans run.
type SyncResult struct {
	Upserted int    `json:"upserted"`
	Deleted  int    `json:"deleted"`
	Skipped  string `json:"skipped,omitempty"`
}

// Catalog is the database-backed plan catalog. It implements
// types.PlanCatalog and is the read-only input feeding the access evaluator.
type Catalog struct {
	store  PlanStore
	logger *slog.Logger
}

// New creates a Catalog over the given plan store.
func New(store PlanStore, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, logger: logger}
}

// GetPlan resolves a plan by ID. Deprecated and inactive plans still resolve
// here; tenants assigned to them keep evaluating against their feature sets
// until sync removes the row.
func (c *Catalog) GetPlan(ctx context.Context, planID string) (*types.Plan, error) {
	return c.store.GetByID(ctx, planID)
}

// ListActivePlans returns the customer-facing paid plan listing, sorted by
// price ascending. The free plan and any zero-price plan are excluded: they
// are resolvable by ID but never offered for purchase.
func (c *Catalog) ListActivePlans(ctx context.Context) ([]*types.Plan, error) {
	plans, err := c.store.ListByStatus(ctx, types.PlanStatusActive)
	if err != nil {
		return nil, err
	}

	listed := make([]*types.Plan, 0, len(plans))
	for _, p := range plans {
		if p.ID == FreePlanID || p.PriceCents == 0 {
			continue
		}
		listed = append(listed, p)
	}
	return listed, nil
}

// SyncPlans converges the plans table onto the reference definitions.
//
// The operation merges, never truncates: every reference plan is upserted in
// full, rows outside the reference set are left alone (a tenant may still be
// assigned to them), and the one explicitly deprecated plan ID is deleted
// only once no tenant references it. Running SyncPlans twice yields the same
// catalog as running it once.
func (c *Catalog) SyncPlans(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}

	for i := range referencePlans {
		plan := referencePlans[i]
		if err := c.store.Upsert(ctx, &plan); err != nil {
			return nil, err
		}
		result.Upserted++
	}

	deleted, skipped, err := c.removeDeprecated(ctx)
	if err != nil {
		return nil, err
	}
	if deleted {
		result.Deleted = 1
	}
	result.Skipped = skipped

	c.logger.Info("plan catalog synced",
		slog.Int("upserted", result.Upserted),
		slog.Int("deleted", result.Deleted),
	)
	return result, nil
}

// removeDeprecated deletes the deprecated plan row if it exists and no
// tenant is assigned to it. Returns whether a row was deleted and, when the
// delete was withheld, the reason.
func (c *Catalog) removeDeprecated(ctx context.Context) (bool, string, error) {
	_, err := c.store.GetByID(ctx, DeprecatedPlanID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundPlan {
			// Already gone; idempotent.
			return false, "", nil
		}
		return false, "", err
	}

	assigned, err := c.store.CountAssignedTenants(ctx, DeprecatedPlanID)
	if err != nil {
		return false, "", err
	}
	if assigned > 0 {
		c.logger.Warn("deprecated plan still assigned, delete withheld",
			slog.String("plan_id", DeprecatedPlanID),
			slog.Int("assigned_tenants", assigned),
		)
		return false, "deprecated plan still assigned to tenants", nil
	}

	if err := c.store.Delete(ctx, DeprecatedPlanID); err != nil {
		return false, "", err
	}
	return true, "", nil
}
