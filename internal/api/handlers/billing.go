package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agendly/internal/core"
	"agendly/internal/types"
)

// CheckoutRequest is the body for POST /billing/checkout.
type CheckoutRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// PortalRequest is the body for POST /billing/portal.
type PortalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// BillingService drives plan purchases. Implemented by billing.Service.
type BillingService interface {
	StartCheckout(ctx context.Context, tenantID, planID, successURL, cancelURL string) (*types.CheckoutIntent, error)
	PortalSession(ctx context.Context, tenantID, returnURL string) (string, error)
	QuoteProration(ctx context.Context, tenantID, newPlanID string) (*types.ProrationQuote, error)
}

// BillingHandler serves the checkout, portal, and proration endpoints.
type BillingHandler struct {
	billing   BillingService
	logger    *slog.Logger
	validator *core.Validator
}

func NewBillingHandler(billing BillingService, logger *slog.Logger, validator *core.Validator) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{billing: billing, logger: logger, validator: validator}
}

func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout", h.HandleCheckout)
	r.Post("/billing/portal", h.HandlePortal)
	r.Get("/billing/proration", h.HandleProration)
}

// HandleCheckout processes POST /billing/checkout and returns the Stripe
// checkout session the dashboard redirects to.
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	intent, err := h.billing.StartCheckout(r.Context(), actor.TenantID, req.PlanID, req.SuccessURL, req.CancelURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: intent})
}

// HandlePortal processes POST /billing/portal.
func (h *BillingHandler) HandlePortal(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req PortalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	url, err := h.billing.PortalSession(r.Context(), actor.TenantID, req.ReturnURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"portal_url": url}})
}

// HandleProration processes GET /billing/proration?plan_id=. It quotes the
// remaining-days credit a tenant would receive when switching plans now.
func (h *BillingHandler) HandleProration(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	planID := r.URL.Query().Get("plan_id")
	if planID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"plan_id query parameter is required", nil))
		return
	}

	quote, err := h.billing.QuoteProration(r.Context(), actor.TenantID, planID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: quote})
}
