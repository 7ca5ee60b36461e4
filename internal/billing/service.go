// Package billing turns plan purchases into subscription state. The
// checkout path hands tenants off to Stripe; the webhook path applies
// Stripe's confirmation back onto the tenant row. Nothing in between is
// trusted: access is granted only from signature-verified events.
package billing

import (
	"context"
	"log/slog"
	"math"

	"agendly/internal/types"
)

// PlanResolver is the billing view of the plan catalog.
type PlanResolver interface {
	GetPlan(ctx context.Context, planID string) (*types.Plan, error)
}

// CheckoutGateway abstracts the Stripe client for session creation.
type CheckoutGateway interface {
	EnsureCustomer(ctx context.Context, tenantID string) (string, error)
	CreateCheckoutSession(ctx context.Context, tenantID string, plan *types.Plan, successURL, cancelURL string) (*types.CheckoutIntent, error)
	CreatePortalSession(ctx context.Context, tenantID, returnURL string) (string, error)
}

// TenantReader provides the tenant state the proration quote needs.
type TenantReader interface {
	GetByID(ctx context.Context, tenantID string) (*types.Tenant, error)
}

// ServiceConfig holds the dependencies for creating a billing Service.
type ServiceConfig struct {
	Plans   PlanResolver
	Gateway CheckoutGateway
	Tenants TenantReader
	Clock   types.Clock
	Logger  *slog.Logger
}

// Service implements checkout initiation, portal access, and upgrade
// proration quotes.
type Service struct {
	plans   PlanResolver
	gateway CheckoutGateway
	tenants TenantReader
	clock   types.Clock
	logger  *slog.Logger
}

// NewService creates a billing Service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		plans:   cfg.Plans,
		gateway: cfg.Gateway,
		tenants: cfg.Tenants,
		clock:   clock,
		logger:  logger,
	}
}

// StartCheckout validates that the requested plan is purchasable and opens
// a Stripe checkout session for it. Free and zero-price plans are never
// purchasable, nor are plans outside active status.
func (s *Service) StartCheckout(ctx context.Context, tenantID, planID, successURL, cancelURL string) (*types.CheckoutIntent, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if plan.PriceCents == 0 || plan.DurationDays == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"plan is not purchasable",
			nil,
		)
	}
	if plan.Status != types.PlanStatusActive {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"plan is no longer offered",
			nil,
		)
	}

	if _, err := s.gateway.EnsureCustomer(ctx, tenantID); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateCheckoutSession(ctx, tenantID, plan, successURL, cancelURL)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"tenant_id", tenantID,
		"plan_id", plan.ID,
		"session_id", intent.SessionID,
	)
	return intent, nil
}

// PortalSession opens a Stripe billing portal session for the tenant's
// customer record.
func (s *Service) PortalSession(ctx context.Context, tenantID, returnURL string) (string, error) {
	if _, err := s.gateway.EnsureCustomer(ctx, tenantID); err != nil {
		return "", err
	}
	return s.gateway.CreatePortalSession(ctx, tenantID, returnURL)
}

// QuoteProration prices an upgrade to newPlanID for the tenant's current
// paid period. The unused remainder of the current plan converts to a
// credit at its daily rate; the amount due is the new plan price minus that
// credit, floored at zero. A tenant on the free plan or past expiry has no
// remainder and pays full price.
func (s *Service) QuoteProration(ctx context.Context, tenantID, newPlanID string) (*types.ProrationQuote, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	newPlan, err := s.plans.GetPlan(ctx, newPlanID)
	if err != nil {
		return nil, err
	}
	if newPlan.PriceCents == 0 || newPlan.DurationDays == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"cannot quote an upgrade to a free plan",
			nil,
		)
	}

	quote := &types.ProrationQuote{AmountDueCents: newPlan.PriceCents}

	remaining := s.remainingDays(tenant)
	if remaining == 0 {
		return quote, nil
	}

	currentPlan, err := s.plans.GetPlan(ctx, tenant.PlanID)
	if err != nil {
		// An unresolvable current plan carries no credit.
		s.logger.WarnContext(ctx, "proration quote with unresolvable current plan",
			"tenant_id", tenantID,
			"plan_id", tenant.PlanID,
			"error", err,
		)
		return quote, nil
	}
	if currentPlan.PriceCents == 0 || currentPlan.DurationDays == 0 {
		return quote, nil
	}

	if remaining > currentPlan.DurationDays {
		remaining = currentPlan.DurationDays
	}

	credit := currentPlan.PriceCents * int64(remaining) / int64(currentPlan.DurationDays)
	due := newPlan.PriceCents - credit
	if due < 0 {
		due = 0
	}

	quote.RemainingDays = remaining
	quote.CreditCents = credit
	quote.AmountDueCents = due
	return quote, nil
}

// remainingDays counts whole days of paid access left, rounding partial
// days up so a tenant is never under-credited.
func (s *Service) remainingDays(tenant *types.Tenant) int {
	if tenant.AccessExpiresAt == nil {
		return 0
	}
	left := tenant.AccessExpiresAt.Sub(s.clock.Now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
