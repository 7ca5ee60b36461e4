package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agendly/internal/security"
	"agendly/internal/types"
)

// WhatsAppGatewayConfig holds the configuration for creating a
// WhatsAppGateway client.
type WhatsAppGatewayConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// WhatsAppGateway implements types.MessagingGateway against the hosted
// WhatsApp gateway HTTP API. Every call authenticates with the tenant's
// instance token; there is no process-level credential.
type WhatsAppGateway struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewWhatsAppGateway creates a gateway client. The configured timeout bounds
// every send call; the reconciler and the campaign worker both rely on that
// budget staying in single-digit seconds.
func NewWhatsAppGateway(cfg WhatsAppGatewayConfig) *WhatsAppGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		security.NewSafeHTTPClient(timeout, 3),
		"whatsapp-gateway",
		GatewayRetryPolicy(),
		cfg.UserAgent,
	)

	return &WhatsAppGateway{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// NewWhatsAppGatewayWithBase creates a gateway client over a pre-configured
// BaseClient. Used by tests to control retry and breaker behavior.
func NewWhatsAppGatewayWithBase(base *BaseClient, baseURL string, logger *slog.Logger) *WhatsAppGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppGateway{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// SetWebhook configures the instance's outbound callback URL. An empty url
// explicitly clears the webhook on the gateway side.
func (g *WhatsAppGateway) SetWebhook(ctx context.Context, instanceToken types.SecretString, url string) error {
	payload := map[string]any{"value": url}
	resp, err := g.doJSON(ctx, http.MethodPut, "/instance/webhook", instanceToken, payload)
	if err != nil {
		return g.wrapGatewayError("SetWebhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return g.handleErrorResponse(resp, "SetWebhook")
	}
	return nil
}

// SendText delivers a plain text message to the given phone number.
func (g *WhatsAppGateway) SendText(ctx context.Context, instanceToken types.SecretString, number, text string) error {
	payload := map[string]any{
		"phone":   number,
		"message": text,
	}
	resp, err := g.doJSON(ctx, http.MethodPost, "/message/text", instanceToken, payload)
	if err != nil {
		return g.wrapGatewayError("SendText", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return g.handleErrorResponse(resp, "SendText")
	}
	return nil
}

// SendMedia delivers a media message (image, document, audio) by URL.
func (g *WhatsAppGateway) SendMedia(ctx context.Context, instanceToken types.SecretString, number string, mediaType types.MediaType, mediaURL string) error {
	payload := map[string]any{
		"phone": number,
		"type":  string(mediaType),
		"url":   mediaURL,
	}
	resp, err := g.doJSON(ctx, http.MethodPost, "/message/media", instanceToken, payload)
	if err != nil {
		return g.wrapGatewayError("SendMedia", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return g.handleErrorResponse(resp, "SendMedia")
	}
	return nil
}

// doJSON performs an authenticated request with a JSON body. The instance
// token travels in a header so it never lands in URLs or access logs.
func (g *WhatsAppGateway) doJSON(ctx context.Context, method, path string, instanceToken types.SecretString, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode gateway payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Instance-Token", instanceToken.Unmask())

	return g.base.Do(req)
}

// gatewayErrorResponse is the JSON error body the gateway returns.
type gatewayErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleErrorResponse maps a non-success gateway response to an AppError.
func (g *WhatsAppGateway) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("%s: gateway returned status %d with unreadable body", operation, resp.StatusCode),
			readErr,
		)
	}

	var gwErr gatewayErrorResponse
	detail := strings.TrimSpace(string(body))
	if jsonErr := json.Unmarshal(body, &gwErr); jsonErr == nil && gwErr.Message != "" {
		detail = gwErr.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("%s: gateway rejected instance token", operation),
			nil,
		)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return types.NewAppError(
			types.ErrCodeValidationInvalidPhone,
			fmt.Sprintf("%s: gateway rejected request: %s", operation, detail),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("%s: gateway error (%d): %s", operation, resp.StatusCode, detail),
			nil,
		)
	}
}

// wrapGatewayError wraps a BaseClient transport error with operation context.
func (g *WhatsAppGateway) wrapGatewayError(operation string, err error) error {
	if appErr, ok := err.(*types.AppError); ok {
		if appErr.Code == types.ErrCodeUpstreamUnavailable {
			return types.NewAppError(types.ErrCodeUpstreamGateway, fmt.Sprintf("%s: %s", operation, appErr.Message), appErr.Err)
		}
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamGateway,
		fmt.Sprintf("%s: gateway request failed", operation),
		err,
	)
}
