package types

import (
	"time"
)

// QuotaDateLayout is the canonical key format for daily quota records.
// The date is pinned by the originating batch at its start, never re-read
// from the clock at increment time, so a batch that straddles midnight
// keeps charging the day it started on.
const QuotaDateLayout = "2006-01-02"

// Plan is a named bundle of entitlements with a price and duration.
// DurationDays == 0 denotes the non-expiring free plan.
type Plan struct {
	ID           string        `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	Description  string        `json:"description" db:"description"`
	PriceCents   int64         `json:"price_cents" db:"price_cents"`
	DurationDays int           `json:"duration_days" db:"duration_days"`
	Features     []FeatureFlag `json:"features" db:"features"`
	IsFeatured   bool          `json:"is_featured" db:"is_featured"`
	Status       PlanStatus    `json:"status" db:"status"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// HasFeature reports whether the plan's feature set includes the given flag.
func (p *Plan) HasFeature(f FeatureFlag) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// Tenant is a business account using the scheduling platform. The embedded
// subscription state (plan assignment, expiry, gateway wiring) is what the
// entitlement core evaluates on every privileged request.
type Tenant struct {
	ID           string `json:"id" db:"id"`
	BusinessName string `json:"business_name" db:"business_name"`
	OwnerEmail   string `json:"owner_email" db:"owner_email"`
	Phone        string `json:"phone" db:"phone"`
	PostalCode   string `json:"postal_code,omitempty" db:"postal_code"`
	Address      string `json:"address,omitempty" db:"address"`

	// Subscription state
	PlanID                  string             `json:"plan_id" db:"plan_id"`
	AccessExpiresAt         *time.Time         `json:"access_expires_at,omitempty" db:"access_expires_at"`
	SubscriptionStatus      SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	StripeCustomerID        string             `json:"-" db:"stripe_customer_id"`
	LastSubscriptionEventAt *time.Time         `json:"-" db:"last_subscription_event_at"`

	// Messaging gateway wiring
	WhatsAppConnected bool         `json:"whatsapp_connected" db:"whatsapp_connected"`
	InstanceToken     SecretString `json:"-" db:"instance_token"`
	WebhookConfigured string       `json:"webhook_configured" db:"webhook_configured"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// DailyQuota is the per-tenant, per-day outbound message counter.
// Keyed by (tenant_id, quota_date); created lazily on first send of the day.
// An absent record is equivalent to SentCount == 0.
type DailyQuota struct {
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	Date        string    `json:"date" db:"quota_date"`
	SentCount   int       `json:"sent_count" db:"sent_count"`
	CampaignIDs []string  `json:"campaign_ids" db:"campaign_ids"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// AdminRecord is a directory entry in the system_admins collection.
// A record authorizes its subject only while Active is true.
type AdminRecord struct {
	UID       string    `json:"uid" db:"uid"`
	Email     string    `json:"email" db:"email"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User represents a human user within a tenant.
type User struct {
	ID           string     `json:"id" db:"id"`
	TenantID     string     `json:"tenant_id" db:"tenant_id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name,omitempty" db:"name"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         UserRole   `json:"role" db:"role"`
	Status       UserStatus `json:"status" db:"status"`
	AdminClaim   bool       `json:"-" db:"admin_claim"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`
}

// Session represents an authenticated user session.
type Session struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	IPAddress      string    `json:"ip_address" db:"ip_address"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Customer is an end customer of a tenant's business. Batch sweeps read the
// birthday and last-visit columns to decide who gets an automated message.
type Customer struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	Name        string     `json:"name" db:"name"`
	Phone       string     `json:"phone" db:"phone"`
	Birthday    *time.Time `json:"birthday,omitempty" db:"birthday"`
	LastVisitAt *time.Time `json:"last_visit_at,omitempty" db:"last_visit_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Campaign is a tenant-triggered bulk-messaging run.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	TenantID       string         `json:"tenant_id" db:"tenant_id"`
	Name           string         `json:"name" db:"name"`
	MessageText    string         `json:"message_text" db:"message_text"`
	MediaType      MediaType      `json:"media_type,omitempty" db:"media_type"`
	MediaURL       string         `json:"media_url,omitempty" db:"media_url"`
	Status         CampaignStatus `json:"status" db:"status"`
	RecipientCount int            `json:"recipient_count" db:"recipient_count"`
	QuotaDate      string         `json:"quota_date" db:"quota_date"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// SendJob is the SQS payload sent from the API to the campaign worker.
// One job per recipient; the worker re-checks entitlement and quota before
// calling the gateway so a mid-campaign downgrade stops further sends.
type SendJob struct {
	JobID      string    `json:"job_id"`
	TraceID    string    `json:"trace_id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	TenantID   string    `json:"tenant_id"`
	Number     string    `json:"number"`
	Text       string    `json:"text"`
	MediaType  MediaType `json:"media_type,omitempty"`
	MediaURL   string    `json:"media_url,omitempty"`

	// Feature is the entitlement the worker re-checks before sending.
	// Sweep reminders carry their own gating feature; an empty value
	// means a campaign send gated on bulk messaging.
	Feature FeatureFlag `json:"feature,omitempty"`

	// QuotaDate pins the quota day for the whole batch (see QuotaDateLayout).
	QuotaDate string `json:"quota_date"`
}

// SendRecord captures the outcome of a single outbound message for the
// campaign delivery log and the compressed report export.
type SendRecord struct {
	ID         int64      `json:"id" db:"id"`
	CampaignID string     `json:"campaign_id" db:"campaign_id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	Number     string     `json:"number" db:"number"`
	Status     SendStatus `json:"status" db:"status"`
	FailReason string     `json:"fail_reason,omitempty" db:"fail_reason"`
	SentAt     time.Time  `json:"sent_at" db:"sent_at"`
}

// Decision is the structured outcome of a feature entitlement check.
// Denied entitlement is an expected, common outcome, not an error.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"reason,omitempty"`
}

// QuotaResult is the outcome of an atomic quota check-and-increment.
type QuotaResult struct {
	Allowed  bool `json:"allowed"`
	NewCount int  `json:"new_count"`
}

// WebhookReport is the result of validating one tenant's gateway webhook
// configuration against its current entitlement.
type WebhookReport struct {
	TenantID      string `json:"tenant_id"`
	IsValid       bool   `json:"is_valid"`
	NeedsFix      bool   `json:"needs_fix"`
	ConfiguredURL string `json:"configured_url"`
	RequiredURL   string `json:"required_url"`
	Error         string `json:"error,omitempty"`
}

// SweepSummary aggregates per-tenant outcomes of a batch job. One tenant's
// failure never aborts the batch; it is collected here instead.
type SweepSummary struct {
	Sweep     SweepType `json:"sweep"`
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Errors    []string  `json:"errors,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// CheckoutIntent is returned to the dashboard to redirect into Stripe checkout.
type CheckoutIntent struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	PlanID      string `json:"plan_id"`
	AmountCents int64  `json:"amount_cents"`
}

// ProrationQuote describes the credit applied when upgrading mid-cycle.
type ProrationQuote struct {
	RemainingDays  int   `json:"remaining_days"`
	CreditCents    int64 `json:"credit_cents"`
	AmountDueCents int64 `json:"amount_due_cents"`
}

// Entitlements is the dashboard DTO combining the tenant's effective plan
// with its per-feature decisions.
type Entitlements struct {
	PlanID          string                       `json:"plan_id"`
	EffectivePlanID string                       `json:"effective_plan_id"`
	Expired         bool                         `json:"expired"`
	AccessExpiresAt *time.Time                   `json:"access_expires_at,omitempty"`
	Features        map[FeatureFlag]Decision     `json:"features"`
}
