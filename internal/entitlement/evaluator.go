// Package entitlement implements the access evaluator: given a tenant's plan
// assignment and access expiry, it decides whether a feature flag is
// currently usable. Evaluation never raises on missing or expired state; it
// degrades to the free plan and returns a structured denial, since "no
// entitlement" is an expected, common outcome.
package entitlement

import (
	"context"
	"log/slog"

	"agendly/internal/catalog"
	"agendly/internal/types"
)

// Evaluator computes feature eligibility. It implements
// types.AccessEvaluator.
//
// Plan resolution is fail-safe in one direction only: any failure (expired
// access, unresolvable plan ID, catalog read error) downgrades the tenant to
// the free plan. Nothing fails open to a paid plan.
type Evaluator struct {
	catalog types.PlanCatalog
	clock   types.Clock
	logger  *slog.Logger
}

// New creates an Evaluator over the given plan catalog.
func New(planCatalog types.PlanCatalog, clock types.Clock, logger *slog.Logger) *Evaluator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{catalog: planCatalog, clock: clock, logger: logger}
}

// expired reports whether the tenant's paid access has lapsed. The free plan
// is structurally exempt: a free tenant never expires even if a stray
// access_expires_at was written to its record.
func (e *Evaluator) expired(tenant *types.Tenant) bool {
	if tenant.PlanID == catalog.FreePlanID {
		return false
	}
	return tenant.AccessExpiresAt != nil && tenant.AccessExpiresAt.Before(e.clock.Now())
}

// EffectivePlan returns the plan actually applied after accounting for
// expiry fallback, plus whether the fallback was taken because access
// expired.
//
// Resolution order: expired access forces the free plan ID; an unresolvable
// plan ID falls back to the free plan; and if even the free plan cannot be
// read from the catalog, the compiled-in free definition is used so
// evaluation always terminates with a plan in hand.
func (e *Evaluator) EffectivePlan(ctx context.Context, tenant *types.Tenant) (*types.Plan, bool) {
	isExpired := e.expired(tenant)

	effectiveID := tenant.PlanID
	if isExpired || effectiveID == "" {
		effectiveID = catalog.FreePlanID
	}

	plan, err := e.catalog.GetPlan(ctx, effectiveID)
	if err == nil {
		return plan, isExpired
	}

	if effectiveID != catalog.FreePlanID {
		e.logger.Warn("plan did not resolve, falling back to free",
			slog.String("tenant_id", tenant.ID),
			slog.String("plan_id", effectiveID),
		)
		plan, err = e.catalog.GetPlan(ctx, catalog.FreePlanID)
		if err == nil {
			return plan, isExpired
		}
	}

	// Catalog unreachable or free plan missing: fall back to the
	// compiled-in definition rather than denying every request outright.
	e.logger.Error("free plan did not resolve, using compiled-in definition",
		slog.String("tenant_id", tenant.ID),
	)
	free := catalog.FreePlan()
	return &free, isExpired
}

// HasFeature reports whether the feature is usable under the tenant's
// effective plan.
func (e *Evaluator) HasFeature(ctx context.Context, tenant *types.Tenant, feature types.FeatureFlag) bool {
	plan, _ := e.EffectivePlan(ctx, tenant)
	return plan.HasFeature(feature)
}

// CanUseFeature is HasFeature with a structured denial reason. The reason
// distinguishes expiry (the dashboard renders a "renew" prompt) from the
// plan simply lacking the feature (an "upgrade" prompt): denial is reported
// as expiry only when renewing would actually restore the feature.
func (e *Evaluator) CanUseFeature(ctx context.Context, tenant *types.Tenant, feature types.FeatureFlag) types.Decision {
	plan, isExpired := e.EffectivePlan(ctx, tenant)
	if plan.HasFeature(feature) {
		return types.Decision{Allowed: true}
	}

	if isExpired && e.assignedPlanGrants(ctx, tenant, feature) {
		return types.Decision{Allowed: false, Reason: types.DenyAccessExpired}
	}
	return types.Decision{Allowed: false, Reason: types.DenyPlanLacksFeature}
}

// assignedPlanGrants checks the tenant's assigned (pre-fallback) plan for
// the feature. An unresolvable assigned plan grants nothing.
func (e *Evaluator) assignedPlanGrants(ctx context.Context, tenant *types.Tenant, feature types.FeatureFlag) bool {
	assigned, err := e.catalog.GetPlan(ctx, tenant.PlanID)
	if err != nil {
		return false
	}
	return assigned.HasFeature(feature)
}

// Snapshot builds the dashboard entitlements DTO: the effective plan plus a
// per-feature decision for every known flag.
func (e *Evaluator) Snapshot(ctx context.Context, tenant *types.Tenant) *types.Entitlements {
	plan, isExpired := e.EffectivePlan(ctx, tenant)

	features := make(map[types.FeatureFlag]types.Decision, len(types.AllFeatureFlags))
	for _, flag := range types.AllFeatureFlags {
		features[flag] = e.CanUseFeature(ctx, tenant, flag)
	}

	return &types.Entitlements{
		PlanID:          tenant.PlanID,
		EffectivePlanID: plan.ID,
		Expired:         isExpired,
		AccessExpiresAt: tenant.AccessExpiresAt,
		Features:        features,
	}
}
