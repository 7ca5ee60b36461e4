package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the platform.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// MessagingGateway is the per-tenant interface to the WhatsApp gateway
// service. The webhook reconciler depends only on SetWebhook; the campaign
// worker and the scheduled sweeps use the send methods.
type MessagingGateway interface {
	// SetWebhook configures the tenant instance's outbound callback URL.
	// An empty url explicitly clears the webhook.
	SetWebhook(ctx context.Context, instanceToken SecretString, url string) error

	// SendText delivers a plain text message to the given phone number.
	SendText(ctx context.Context, instanceToken SecretString, number, text string) error

	// SendMedia delivers a media message (image, document, audio) by URL.
	SendMedia(ctx context.Context, instanceToken SecretString, number string, mediaType MediaType, mediaURL string) error
}

// PlanCatalog resolves plan definitions. The catalog is the read-only input
// feeding the access evaluator.
type PlanCatalog interface {
	// GetPlan resolves a plan by id. Returns ErrCodeNotFoundPlan if absent.
	GetPlan(ctx context.Context, planID string) (*Plan, error)

	// ListActivePlans returns customer-facing plans sorted by price ascending.
	// Free, deprecated, and zero-price plans are excluded from the listing
	// but remain resolvable by id via GetPlan.
	ListActivePlans(ctx context.Context) ([]*Plan, error)
}

// AccessEvaluator decides feature eligibility from a tenant's plan
// assignment and expiry. It never raises on missing or expired state; it
// degrades to the free plan and returns a structured denial instead.
type AccessEvaluator interface {
	HasFeature(ctx context.Context, tenant *Tenant, feature FeatureFlag) bool
	CanUseFeature(ctx context.Context, tenant *Tenant, feature FeatureFlag) Decision
	EffectivePlan(ctx context.Context, tenant *Tenant) (*Plan, bool)
}

// QuotaLedger bounds how many outbound messages a tenant may trigger per day.
type QuotaLedger interface {
	// CheckAndIncrement atomically increments the day's counter if it is
	// below limit and records the campaign id. A non-positive limit denies.
	CheckAndIncrement(ctx context.Context, tenantID, date, campaignID string, limit int) (QuotaResult, error)

	// Reset deletes the record for the given date outright; the next
	// increment on that date re-creates it from zero.
	Reset(ctx context.Context, tenantID, date string) error

	// Peek returns the record for the given date. An absent record comes
	// back as a zero-count record, not an error.
	Peek(ctx context.Context, tenantID, date string) (*DailyQuota, error)
}

// MetricsCollector records operational telemetry. Implementations publish
// to CloudWatch or discard (no-op) in local development.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordSend(result SendStatus)
	RecordSweep(sweep SweepType, processed, failed int)
}
