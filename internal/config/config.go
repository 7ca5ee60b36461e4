// Package config defines the global configuration structure for the Agendly
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"agendly/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Agendly platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"agendly-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Gateway       GatewayConfig
	Auth          AuthConfig
	Admin         AdminConfig
	Cron          CronConfig
	Lookup        LookupConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for redirects and Stripe return pages (no trailing slash)
	APIExternalURL string   `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	DashboardURL   string   `envconfig:"DASHBOARD_URL" validate:"required,url"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// CampaignQueue receives one SendJob per campaign recipient.
	CampaignQueue string `envconfig:"SQS_CAMPAIGNS" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe payment integration credentials.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
}

// GatewayConfig holds the WhatsApp messaging gateway settings. The instance
// token is per-tenant and lives on the tenant record; only the base URL and
// the fixed automation webhook endpoint are process-level configuration.
// Keeping the automation URL here (rather than a compiled-in literal) means
// rotation does not require a code change.
type GatewayConfig struct {
	BaseURL string `envconfig:"GATEWAY_BASE_URL" validate:"required,url"`

	// AutomationWebhookURL is the callback endpoint assigned to tenants whose
	// effective plan grants AI auto-reply. Tenants without the entitlement
	// must have their webhook cleared.
	AutomationWebhookURL string `envconfig:"AUTOMATION_WEBHOOK_URL" validate:"required,url"`

	Timeout      time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"8s"`
	UserAgent    string        `envconfig:"GATEWAY_USER_AGENT" default:"Agendly-Gateway/1.0"`
}

// AuthConfig holds session and token credentials.
type AuthConfig struct {
	// SessionTTL is the sliding-window lifetime of dashboard sessions.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	// JWTSigningKey verifies ID tokens carrying the boolean admin claim.
	JWTSigningKey SecretString `envconfig:"JWT_SIGNING_KEY" validate:"required,min=32"`
}

// AdminConfig holds administrator access configuration.
type AdminConfig struct {
	// Allowlist is the static set of admin emails, comma separated. Emails
	// are normalized (trim + lowercase) before membership checks.
	Allowlist []string `envconfig:"ADMIN_ALLOWLIST"`

	// SetupSecret gates the one-time admin bootstrap endpoint
	// (bearer-equality check, not a cryptographic protocol).
	SetupSecret SecretString `envconfig:"ADMIN_SETUP_SECRET" validate:"required"`
}

// CronConfig holds the shared secret gating scheduled batch endpoints.
type CronConfig struct {
	Secret SecretString `envconfig:"CRON_SECRET" validate:"required"`

	// SweepConcurrency bounds how many tenants a batch sweep processes at
	// once, to respect the messaging gateway's rate limits.
	SweepConcurrency int `envconfig:"SWEEP_CONCURRENCY" default:"8"`

	// QuotaRetention is how long daily quota rows are kept before the
	// maintenance sweep purges them.
	QuotaRetention time.Duration `envconfig:"QUOTA_RETENTION" default:"2160h"`

	// DailyMessageLimit caps outbound automated messages per tenant per day.
	DailyMessageLimit int `envconfig:"DAILY_MESSAGE_LIMIT" default:"300"`
}

// LookupConfig holds the postal-code address lookup service settings.
type LookupConfig struct {
	BaseURL string        `envconfig:"CEP_LOOKUP_URL" default:"https://viacep.com.br"`
	Timeout time.Duration `envconfig:"CEP_LOOKUP_TIMEOUT" default:"4s"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Agendly"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
