package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agendly/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// Stripe webhook event types the platform reacts to. Anything else is
// acknowledged and ignored.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeInvoicePaid       = "invoice.paid"
	EventStripePaymentFailed     = "invoice.payment_failed"
	EventStripeSubDeleted        = "customer.subscription.deleted"
	EventStripeChargeRefunded    = "charge.refunded"
)

// TenantBillingLookup provides the minimal data access StripeClient needs
// to resolve a tenant into its Stripe customer. This avoids pulling in the
// full tenant repository.
type TenantBillingLookup interface {
	GetByID(ctx context.Context, tenantID string) (*types.Tenant, error)
	SetStripeCustomerID(ctx context.Context, tenantID, customerID string) error
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API through BaseClient so checkout
// and portal calls inherit the platform's resilience behavior and stay
// testable with httptest.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	tenants   TenantBillingLookup
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient.
func NewStripeClient(httpClient *http.Client, tenants TenantBillingLookup, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Agendly/1.0",
	)

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		tenants:   tenants,
		logger:    logger,
	}
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient, for tests that control retry and breaker behavior.
func NewStripeClientWithBase(base *BaseClient, tenants TenantBillingLookup, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		tenants:   tenants,
		logger:    logger,
	}
}

// EnsureCustomer retrieves or creates a Stripe customer for the tenant.
// Search-first to prevent duplicate customers:
//  1. If the tenant record already carries a customer ID, return it.
//  2. Query the Stripe Search API for metadata['tenant_id'].
//  3. Create a new customer with tenant_id metadata when absent.
//  4. Persist the customer ID on the tenant record.
func (s *StripeClient) EnsureCustomer(ctx context.Context, tenantID string) (string, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if tenant.StripeCustomerID != "" {
		return tenant.StripeCustomerID, nil
	}

	searchParams := url.Values{}
	searchParams.Set("query", fmt.Sprintf("metadata['tenant_id']:'%s'", tenantID))

	searchResp, err := s.doGet(ctx, "/v1/customers/search", searchParams)
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.search", err)
	}
	defer searchResp.Body.Close()

	if searchResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(searchResp, "EnsureCustomer.search")
	}

	var searchResult stripeSearchResult
	if err := json.NewDecoder(searchResp.Body).Decode(&searchResult); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe customer search response", err)
	}

	if len(searchResult.Data) > 0 {
		customerID := searchResult.Data[0].ID
		s.persistCustomerID(ctx, tenantID, customerID)
		return customerID, nil
	}

	createParams := url.Values{}
	createParams.Set("email", tenant.OwnerEmail)
	createParams.Set("name", tenant.BusinessName)
	createParams.Set("metadata[tenant_id]", tenantID)

	createResp, err := s.doPost(ctx, "/v1/customers", createParams)
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.create", err)
	}
	defer createResp.Body.Close()

	if createResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(createResp, "EnsureCustomer.create")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(createResp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe customer creation response", err)
	}

	s.persistCustomerID(ctx, tenantID, customer.ID)
	return customer.ID, nil
}

func (s *StripeClient) persistCustomerID(ctx context.Context, tenantID, customerID string) {
	if err := s.tenants.SetStripeCustomerID(ctx, tenantID, customerID); err != nil {
		s.logger.WarnContext(ctx, "failed to persist stripe customer id",
			"tenant_id", tenantID,
			"customer_id", customerID,
			"error", err,
		)
	}
}

// CreateCheckoutSession generates a Stripe Checkout Session for the given
// plan. client_reference_id carries the tenant ID so the webhook handler
// can correlate the completed session back to the tenant. Plans carry their
// own price in cents, so the line item uses inline price_data rather than a
// pre-provisioned Stripe price.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, tenantID string, plan *types.Plan, successURL, cancelURL string) (*types.CheckoutIntent, error) {
	customerID, err := s.EnsureCustomer(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "payment")
	params.Set("client_reference_id", tenantID)
	params.Set("success_url", successURL)
	params.Set("cancel_url", cancelURL)
	params.Set("metadata[tenant_id]", tenantID)
	params.Set("metadata[plan_id]", plan.ID)
	params.Set("line_items[0][price_data][currency]", "brl")
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(plan.PriceCents, 10))
	params.Set("line_items[0][price_data][product_data][name]", plan.Name)
	params.Set("line_items[0][quantity]", "1")

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe checkout session response", err)
	}

	return &types.CheckoutIntent{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		PlanID:      plan.ID,
		AmountCents: plan.PriceCents,
	}, nil
}

// CreatePortalSession generates a Stripe Billing Portal URL for the tenant.
func (s *StripeClient) CreatePortalSession(ctx context.Context, tenantID, returnURL string) (string, error) {
	customerID, err := s.EnsureCustomer(ctx, tenantID)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	resp, err := s.doPost(ctx, "/v1/billing_portal/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreatePortalSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreatePortalSession")
	}

	var session stripePortalSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe portal session response", err)
	}

	return session.URL, nil
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by Stripe.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error into a types.AppError.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	if stripeErr.Code == "card_declined" || stripeErr.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.DeclineCode,
				"stripe_code":  stripeErr.Code,
			},
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundTenant,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe response types
// ---------------------------------------------------------------------------

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type stripeSearchResult struct {
	Data    []stripeCustomer `json:"data"`
	HasMore bool             `json:"has_more"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// StripeVerifier validates webhook signatures using stripe-go's
// HMAC-SHA256 check with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret types.SecretString) error {
	return stripe.ValidatePayload(payload, header, secret.Unmask())
}
