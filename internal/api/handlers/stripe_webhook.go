package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agendly/internal/core"
	"agendly/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads at 64 KB. Real events
// are far smaller; anything larger is hostile.
const maxWebhookBodySize = 64 * 1024

// SignatureVerifier checks the Stripe-Signature header against the raw
// payload. Implemented by external.StripeVerifier.
type SignatureVerifier interface {
	Verify(payload []byte, header string, secret types.SecretString) error
}

// EventProcessor applies a verified Stripe event to subscription state.
// Implemented by billing.WebhookProcessor.
type EventProcessor interface {
	Process(ctx context.Context, payload []byte) error
}

// StripeWebhookHandler terminates the Stripe webhook endpoint. Signature
// verification is the only authentication on this route.
type StripeWebhookHandler struct {
	verifier  SignatureVerifier
	processor EventProcessor
	secret    types.SecretString
	logger    *slog.Logger
}

func NewStripeWebhookHandler(verifier SignatureVerifier, processor EventProcessor, secret types.SecretString, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:  verifier,
		processor: processor,
		secret:    secret,
		logger:    logger,
	}
}

func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/webhook", h.HandleWebhook)
}

// HandleWebhook processes POST /billing/webhook.
//
// An unverifiable signature is rejected with 400. After verification the
// event is acknowledged with 200 even when processing fails: Stripe
// retries on non-2xx, and a deterministic processing failure would
// otherwise retry forever. Failures are logged for the reconciliation
// sweep to pick up.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"unable to read webhook payload", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.Warn("stripe webhook signature verification failed",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"invalid webhook signature", err))
		return
	}

	if err := h.processor.Process(r.Context(), payload); err != nil {
		h.logger.Error("stripe webhook processing failed",
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"received": true}})
}
