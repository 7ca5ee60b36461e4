// Package reconcile keeps each tenant's gateway webhook configuration
// consistent with its current entitlement state. A tenant whose effective
// plan grants AI auto-reply must point at the automation callback endpoint;
// everyone else must have the webhook cleared so a downgraded tenant stops
// receiving automation callbacks.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"agendly/internal/types"
)

// TenantStore is the tenant data access the reconciler needs.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*types.Tenant, error)
	ListConnected(ctx context.Context) ([]*types.Tenant, error)
	SetWebhookConfigured(ctx context.Context, tenantID, url string) error
}

// WebhookSetter is the single gateway operation reconciliation depends on.
type WebhookSetter interface {
	SetWebhook(ctx context.Context, instanceToken types.SecretString, url string) error
}

// Config bundles the reconciler's dependencies.
type Config struct {
	Tenants   TenantStore
	Evaluator types.AccessEvaluator
	Gateway   WebhookSetter

	// AutomationWebhookURL is the callback endpoint entitled tenants must
	// carry. Injected from configuration so rotation is an env change.
	AutomationWebhookURL string

	// Concurrency bounds the batch sweeps. Defaults to 8.
	Concurrency int

	Logger *slog.Logger
}

// Reconciler validates and repairs per-tenant webhook configuration.
type Reconciler struct {
	tenants     TenantStore
	evaluator   types.AccessEvaluator
	gateway     WebhookSetter
	webhookURL  string
	concurrency int
	logger      *slog.Logger
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		tenants:     cfg.Tenants,
		evaluator:   cfg.Evaluator,
		gateway:     cfg.Gateway,
		webhookURL:  cfg.AutomationWebhookURL,
		concurrency: concurrency,
		logger:      logger,
	}
}

// requiredURL derives the webhook a tenant must carry purely from its
// effective entitlement to AI auto-reply.
func (r *Reconciler) requiredURL(ctx context.Context, tenant *types.Tenant) string {
	if r.evaluator.CanUseFeature(ctx, tenant, types.FeatureAIAutoReply).Allowed {
		return r.webhookURL
	}
	return ""
}

// Validate reports whether the tenant's configured webhook matches its
// entitlement. It never mutates state.
func (r *Reconciler) Validate(ctx context.Context, tenantID string) (*types.WebhookReport, error) {
	tenant, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return r.validateTenant(ctx, tenant), nil
}

func (r *Reconciler) validateTenant(ctx context.Context, tenant *types.Tenant) *types.WebhookReport {
	required := r.requiredURL(ctx, tenant)
	report := &types.WebhookReport{
		TenantID:      tenant.ID,
		ConfiguredURL: tenant.WebhookConfigured,
		RequiredURL:   required,
	}
	report.IsValid = tenant.WebhookConfigured == required
	report.NeedsFix = !report.IsValid
	return report
}

// Fix brings the tenant's webhook in line with its entitlement. Setting an
// empty URL explicitly clears the webhook on the gateway. Fix is idempotent:
// a tenant already in the required state is left untouched.
func (r *Reconciler) Fix(ctx context.Context, tenantID string) (*types.WebhookReport, error) {
	tenant, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return r.fixTenant(ctx, tenant), nil
}

func (r *Reconciler) fixTenant(ctx context.Context, tenant *types.Tenant) *types.WebhookReport {
	report := r.validateTenant(ctx, tenant)
	if report.IsValid {
		return report
	}

	if err := r.gateway.SetWebhook(ctx, tenant.InstanceToken, report.RequiredURL); err != nil {
		report.Error = fmt.Sprintf("set webhook: %v", err)
		r.logger.Warn("webhook fix failed at gateway",
			"tenant_id", tenant.ID,
			"required_url", report.RequiredURL,
			"error", err,
		)
		return report
	}

	if err := r.tenants.SetWebhookConfigured(ctx, tenant.ID, report.RequiredURL); err != nil {
		// The gateway is already updated; the stored state will converge on
		// the next sweep.
		report.Error = fmt.Sprintf("persist webhook state: %v", err)
		r.logger.Warn("webhook fix failed to persist",
			"tenant_id", tenant.ID,
			"required_url", report.RequiredURL,
			"error", err,
		)
		return report
	}

	report.ConfiguredURL = report.RequiredURL
	report.IsValid = true
	report.NeedsFix = false

	r.logger.Info("webhook reconciled",
		"tenant_id", tenant.ID,
		"url", report.RequiredURL,
	)
	return report
}

// ValidateAll validates every connected tenant with bounded concurrency.
// One tenant's failure never aborts the batch; it is recorded on that
// tenant's report instead.
func (r *Reconciler) ValidateAll(ctx context.Context) ([]*types.WebhookReport, error) {
	return r.sweep(ctx, r.validateTenant)
}

// FixAll repairs every connected tenant with bounded concurrency, with the
// same collect-and-report error semantics as ValidateAll.
func (r *Reconciler) FixAll(ctx context.Context) ([]*types.WebhookReport, error) {
	return r.sweep(ctx, r.fixTenant)
}

func (r *Reconciler) sweep(ctx context.Context, op func(context.Context, *types.Tenant) *types.WebhookReport) ([]*types.WebhookReport, error) {
	tenants, err := r.tenants.ListConnected(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	reports := make([]*types.WebhookReport, 0, len(tenants))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, tenant := range tenants {
		g.Go(func() error {
			report := op(gCtx, tenant)
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			// Per-tenant failures live on the report, never in the group.
			return nil
		})
	}

	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].TenantID < reports[j].TenantID })
	return reports, nil
}
