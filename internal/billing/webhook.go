package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"agendly/internal/catalog"
	"agendly/internal/external"
	"agendly/internal/types"
)

// SubscriptionStore applies verified subscription state changes. Updates go
// through the optimistic-locking path keyed on last_subscription_event_at,
// so a replayed or out-of-order event cannot clobber newer state.
type SubscriptionStore interface {
	GetByID(ctx context.Context, tenantID string) (*types.Tenant, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Tenant, error)
	UpdateSubscription(ctx context.Context, tenantID, planID string, accessExpiresAt *time.Time, status types.SubscriptionStatus, eventTimestamp time.Time) error
}

// WebhookProcessor routes verified Stripe webhook events onto tenant
// subscription state. Signature verification happens in the HTTP handler
// before Process is called; the processor assumes the payload is authentic.
type WebhookProcessor struct {
	tenants SubscriptionStore
	plans   PlanResolver
	logger  *slog.Logger
}

// NewWebhookProcessor creates a WebhookProcessor.
func NewWebhookProcessor(tenants SubscriptionStore, plans PlanResolver, logger *slog.Logger) *WebhookProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookProcessor{tenants: tenants, plans: plans, logger: logger}
}

// Process parses the event payload and dispatches by event type. Unhandled
// event types are acknowledged without action.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte) error {
	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"invalid webhook event JSON",
			err,
		)
	}

	p.logger.InfoContext(ctx, "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, &event)

	case external.EventStripeInvoicePaid:
		return p.handleInvoicePaid(ctx, &event)

	case external.EventStripePaymentFailed:
		return p.handlePaymentFailed(ctx, &event)

	case external.EventStripeSubDeleted, external.EventStripeChargeRefunded:
		return p.handleAccessRevoked(ctx, &event)

	default:
		p.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted grants the purchased plan. Access runs from the
// event timestamp, not the processing time, so a delayed delivery does not
// extend the paid window.
func (p *WebhookProcessor) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	tenantID := event.extractTenantID()
	if tenantID == "" {
		return fmt.Errorf("checkout.session.completed: missing tenant_id in event %s", event.ID)
	}

	planID := event.extractPlanID()
	if planID == "" {
		return fmt.Errorf("checkout.session.completed: missing plan_id in event %s", event.ID)
	}

	return p.grantPlan(ctx, tenantID, planID, event)
}

// handleInvoicePaid renews the subscription for another plan period. The
// plan comes from the invoice metadata when present, otherwise the tenant's
// current assignment is renewed.
func (p *WebhookProcessor) handleInvoicePaid(ctx context.Context, event *stripeWebhookEvent) error {
	tenant, err := p.resolveTenant(ctx, event)
	if err != nil {
		return fmt.Errorf("invoice.paid: %w", err)
	}

	planID := event.extractPlanID()
	if planID == "" {
		planID = tenant.PlanID
	}

	return p.grantPlan(ctx, tenant.ID, planID, event)
}

// handlePaymentFailed records dunning state. The plan assignment and expiry
// are untouched; access lapses on its own when the expiry passes.
func (p *WebhookProcessor) handlePaymentFailed(ctx context.Context, event *stripeWebhookEvent) error {
	tenant, err := p.resolveTenant(ctx, event)
	if err != nil {
		return fmt.Errorf("invoice.payment_failed: %w", err)
	}

	p.logger.WarnContext(ctx, "payment failed for tenant",
		"event_id", event.ID,
		"tenant_id", tenant.ID,
	)

	return p.tenants.UpdateSubscription(ctx, tenant.ID, tenant.PlanID, tenant.AccessExpiresAt, types.SubStatusPastDue, event.eventTimestamp())
}

// handleAccessRevoked reverts the tenant to the free plan immediately.
// Cancellations and refunds are treated identically.
func (p *WebhookProcessor) handleAccessRevoked(ctx context.Context, event *stripeWebhookEvent) error {
	tenant, err := p.resolveTenant(ctx, event)
	if err != nil {
		return fmt.Errorf("%s: %w", event.Type, err)
	}

	p.logger.InfoContext(ctx, "revoking paid access",
		"event_id", event.ID,
		"event_type", event.Type,
		"tenant_id", tenant.ID,
	)

	return p.tenants.UpdateSubscription(ctx, tenant.ID, catalog.FreePlanID, nil, types.SubStatusCanceled, event.eventTimestamp())
}

// grantPlan resolves the plan and writes the subscription with an expiry of
// eventTime + DurationDays. A zero-duration plan is written without expiry.
func (p *WebhookProcessor) grantPlan(ctx context.Context, tenantID, planID string, event *stripeWebhookEvent) error {
	plan, err := p.plans.GetPlan(ctx, planID)
	if err != nil {
		return fmt.Errorf("resolve plan %q: %w", planID, err)
	}

	var expiresAt *time.Time
	if plan.DurationDays > 0 {
		exp := event.eventTimestamp().AddDate(0, 0, plan.DurationDays)
		expiresAt = &exp
	}

	if err := p.tenants.UpdateSubscription(ctx, tenantID, plan.ID, expiresAt, types.SubStatusActive, event.eventTimestamp()); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "subscription applied",
		"event_id", event.ID,
		"tenant_id", tenantID,
		"plan_id", plan.ID,
	)
	return nil
}

// resolveTenant finds the tenant an event belongs to, preferring explicit
// metadata and falling back to the Stripe customer ID.
func (p *WebhookProcessor) resolveTenant(ctx context.Context, event *stripeWebhookEvent) (*types.Tenant, error) {
	if tenantID := event.extractTenantID(); tenantID != "" {
		return p.tenants.GetByID(ctx, tenantID)
	}
	if customerID := event.extractCustomerID(); customerID != "" {
		return p.tenants.GetByStripeCustomerID(ctx, customerID)
	}
	return nil, fmt.Errorf("no tenant reference in event %s", event.ID)
}

// ---------------------------------------------------------------------------
// Stripe Event Parsing
// ---------------------------------------------------------------------------

// stripeWebhookEvent is a minimal representation of a Stripe webhook event
// tailored to extract the fields needed for routing. Parsing the raw JSON
// directly keeps the processor decoupled from stripe-go's event types and
// makes tests plain fixtures.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeEventObject covers the fields shared across the object shapes we
// care about: checkout sessions, invoices, subscriptions, and charges all
// expose customer and metadata.
type stripeEventObject struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Metadata          map[string]string `json:"metadata"`
}

func (e *stripeWebhookEvent) eventTimestamp() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

func (e *stripeWebhookEvent) object() *stripeEventObject {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return &stripeEventObject{}
	}
	var obj stripeEventObject
	if err := json.Unmarshal(data.Object, &obj); err != nil {
		return &stripeEventObject{}
	}
	return &obj
}

// extractTenantID prefers client_reference_id, which CreateCheckoutSession
// always sets, then falls back to the tenant_id metadata key.
func (e *stripeWebhookEvent) extractTenantID() string {
	obj := e.object()
	if obj.ClientReferenceID != "" {
		return obj.ClientReferenceID
	}
	return obj.Metadata["tenant_id"]
}

func (e *stripeWebhookEvent) extractPlanID() string {
	return e.object().Metadata["plan_id"]
}

func (e *stripeWebhookEvent) extractCustomerID() string {
	return e.object().Customer
}
