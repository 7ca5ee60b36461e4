package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// TenantRepository provides data access for the tenants table, including the
// embedded subscription state that the entitlement core evaluates on every
// privileged request.
//
// Key invariants:
//   - UpdateSubscription uses optimistic locking via last_subscription_event_at
//     to handle out-of-order Stripe webhooks.
//   - UpdateSubscription checks deleted_at to prevent zombie billing: a
//     payment event for a deleted tenant is rejected and flagged for Ops.
type TenantRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewTenantRepository creates a new TenantRepository backed by the given
// database connection (pool or transaction).
func NewTenantRepository(db DBTX, logger *slog.Logger) *TenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantRepository{db: db, logger: logger}
}

// tenantColumns defines the standard set of columns selected for tenant
// queries. Used consistently across all query methods to avoid column drift.
const tenantColumns = `t.id, t.business_name, t.owner_email, t.phone,
	t.postal_code, t.address, t.plan_id, t.access_expires_at,
	t.subscription_status, t.stripe_customer_id, t.last_subscription_event_at,
	t.whatsapp_connected, t.instance_token, t.webhook_configured,
	t.created_at, t.updated_at, t.deleted_at`

// scanTenant scans a single tenant row into a types.Tenant struct.
// The columns must match the order defined in tenantColumns.
func scanTenant(row pgx.Row) (*types.Tenant, error) {
	var t types.Tenant
	var postalCode, address, stripeCustomerID, instanceToken, webhookConfigured *string

	err := row.Scan(
		&t.ID,
		&t.BusinessName,
		&t.OwnerEmail,
		&t.Phone,
		&postalCode,
		&address,
		&t.PlanID,
		&t.AccessExpiresAt,
		&t.SubscriptionStatus,
		&stripeCustomerID,
		&t.LastSubscriptionEventAt,
		&t.WhatsAppConnected,
		&instanceToken,
		&webhookConfigured,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if postalCode != nil {
		t.PostalCode = *postalCode
	}
	if address != nil {
		t.Address = *address
	}
	if stripeCustomerID != nil {
		t.StripeCustomerID = *stripeCustomerID
	}
	if instanceToken != nil {
		t.InstanceToken = types.SecretString(*instanceToken)
	}
	if webhookConfigured != nil {
		t.WebhookConfigured = *webhookConfigured
	}
	return &t, nil
}

// Create inserts a new tenant record. The caller must set the ID (prefixed
// UUID, e.g. "ten_...") and required fields before calling. Used during the
// signup flow; new tenants start on the plan the caller assigned, normally
// the free plan.
func (r *TenantRepository) Create(ctx context.Context, tenant *types.Tenant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tenants (id, business_name, owner_email, phone, postal_code,
		 address, plan_id, access_expires_at, subscription_status,
		 stripe_customer_id, whatsapp_connected, instance_token,
		 webhook_configured, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		 COALESCE($14, NOW()), COALESCE($15, NOW()))`,
		tenant.ID,
		tenant.BusinessName,
		tenant.OwnerEmail,
		tenant.Phone,
		nilIfEmpty(tenant.PostalCode),
		nilIfEmpty(tenant.Address),
		tenant.PlanID,
		tenant.AccessExpiresAt,
		tenant.SubscriptionStatus,
		nilIfEmpty(tenant.StripeCustomerID),
		tenant.WhatsAppConnected,
		nilIfEmpty(tenant.InstanceToken.Unmask()),
		nilIfEmpty(tenant.WebhookConfigured),
		nilIfZeroTime(tenant.CreatedAt),
		nilIfZeroTime(tenant.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "tenant already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create tenant", err)
	}
	return nil
}

// GetByID retrieves a tenant by its ID. Excludes soft-deleted tenants.
// Returns ErrNotFoundTenant if no active tenant is found.
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*types.Tenant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t
		 WHERE t.id = $1 AND t.deleted_at IS NULL`,
		id,
	)

	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve tenant", err)
	}
	return tenant, nil
}

// GetByStripeCustomerID resolves a tenant by its Stripe customer reference.
// Used by the billing webhook handler to map Stripe events back to tenants.
func (r *TenantRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Tenant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t
		 WHERE t.stripe_customer_id = $1 AND t.deleted_at IS NULL`,
		customerID,
	)

	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found for stripe customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve tenant by stripe customer", err)
	}
	return tenant, nil
}

// Update applies partial changes to a tenant record. Only mutable profile
// fields (business_name, phone, postal_code, address) are written; the
// subscription state has its own dedicated update paths.
func (r *TenantRepository) Update(ctx context.Context, tenant *types.Tenant) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET business_name = $1,
		     phone = $2,
		     postal_code = $3,
		     address = $4,
		     updated_at = NOW()
		 WHERE id = $5 AND deleted_at IS NULL`,
		tenant.BusinessName,
		tenant.Phone,
		nilIfEmpty(tenant.PostalCode),
		nilIfEmpty(tenant.Address),
		tenant.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update tenant", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// UpdateSubscription atomically updates the plan assignment, access expiry
// and subscription status from a billing event.
//
// Invariants enforced:
//  1. Zombie check: MUST fail if the tenant is soft-deleted. Logs a
//     ZC_BILLING_ALERT to signal Ops to manually cancel in Stripe.
//  2. Optimistic locking: the update only applies if eventTimestamp is newer
//     than the stored last_subscription_event_at. Old or duplicate events
//     are silently ignored (idempotent no-op).
func (r *TenantRepository) UpdateSubscription(
	ctx context.Context,
	tenantID string,
	planID string,
	accessExpiresAt *time.Time,
	status types.SubscriptionStatus,
	eventTimestamp time.Time,
) error {
	// Check deletion state first so the zombie case gets its specific alert.
	var deletedAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT deleted_at FROM tenants WHERE id = $1`,
		tenantID,
	).Scan(&deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check tenant status", err)
	}

	if deletedAt != nil {
		r.logger.Error("ZC_BILLING_ALERT: billing event received for deleted tenant",
			slog.String("tenant_id", tenantID),
			slog.String("new_plan", planID),
			slog.String("status", string(status)),
			slog.Time("event_timestamp", eventTimestamp),
		)
		return types.NewAppError(
			types.ErrCodeConflictConcurrent,
			fmt.Sprintf("tenant %s is deleted; billing update rejected (ZC_BILLING_ALERT)", tenantID),
			nil,
		)
	}

	// Optimistic locking update: only apply if this event is newer than
	// the last processed event.
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET plan_id = $1,
		     access_expires_at = $2,
		     subscription_status = $3,
		     last_subscription_event_at = $4,
		     updated_at = NOW()
		 WHERE id = $5
		   AND deleted_at IS NULL
		   AND (last_subscription_event_at IS NULL OR last_subscription_event_at < $4)`,
		planID,
		accessExpiresAt,
		status,
		eventTimestamp,
		tenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription", err)
	}

	if tag.RowsAffected() == 0 {
		// Event is older than or equal to what we already have, idempotent no-op.
		r.logger.Info("stale subscription event ignored (optimistic lock)",
			slog.String("tenant_id", tenantID),
			slog.Time("event_timestamp", eventTimestamp),
		)
		return nil
	}

	return nil
}

// SetStripeCustomerID records the Stripe customer reference after the first
// checkout session is created for the tenant.
func (r *TenantRepository) SetStripeCustomerID(ctx context.Context, tenantID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET stripe_customer_id = $1,
		     updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		customerID,
		tenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set stripe customer id", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// SetGatewayState records the messaging gateway wiring for a tenant: whether
// the WhatsApp instance is connected and the per-tenant instance token.
func (r *TenantRepository) SetGatewayState(ctx context.Context, tenantID string, connected bool, instanceToken types.SecretString) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET whatsapp_connected = $1,
		     instance_token = $2,
		     updated_at = NOW()
		 WHERE id = $3 AND deleted_at IS NULL`,
		connected,
		nilIfEmpty(instanceToken.Unmask()),
		tenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set gateway state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// SetWebhookConfigured records the webhook URL currently configured on the
// tenant's gateway instance, as observed or written by the reconciler.
func (r *TenantRepository) SetWebhookConfigured(ctx context.Context, tenantID, url string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET webhook_configured = $1,
		     updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		nilIfEmpty(url),
		tenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set webhook state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// ListConnected retrieves all non-deleted tenants with a connected gateway
// instance, ordered by ID for deterministic batch iteration. Used by the
// webhook reconciler and the scheduled sweeps.
func (r *TenantRepository) ListConnected(ctx context.Context) ([]*types.Tenant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t
		 WHERE t.deleted_at IS NULL
		   AND t.whatsapp_connected = TRUE
		 ORDER BY t.id ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list connected tenants", err)
	}
	defer rows.Close()

	var tenants []*types.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tenant row", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating tenant rows", err)
	}
	return tenants, nil
}

// Delete performs a soft delete by setting deleted_at = NOW(). The caller
// must cancel the billing subscription before calling Delete; afterwards any
// late billing event trips the zombie check in UpdateSubscription.
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete tenant", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found or already deleted", nil)
	}
	return nil
}
