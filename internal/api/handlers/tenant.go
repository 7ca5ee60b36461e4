package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agendly/internal/core"
	"agendly/internal/external"
	"agendly/internal/types"
)

// TenantReader resolves the caller's tenant record.
type TenantReader interface {
	GetByID(ctx context.Context, id string) (*types.Tenant, error)
}

// EntitlementSource combines the per-feature decisions with the dashboard
// snapshot. Implemented by entitlement.Evaluator.
type EntitlementSource interface {
	CanUseFeature(ctx context.Context, tenant *types.Tenant, feature types.FeatureFlag) types.Decision
	Snapshot(ctx context.Context, tenant *types.Tenant) *types.Entitlements
}

// AddressLookup resolves a postal code to a street address when a tenant
// fills in their business profile. Implemented by external.CEPClient.
type AddressLookup interface {
	Lookup(ctx context.Context, postalCode string) (*external.Address, error)
}

// TenantHandler serves the authenticated tenant's own entitlement and
// quota state under /tenants/me.
type TenantHandler struct {
	tenants    TenantReader
	evaluator  EntitlementSource
	quota      types.QuotaLedger
	lookup     AddressLookup
	clock      types.Clock
	dailyLimit int
}

func NewTenantHandler(tenants TenantReader, evaluator EntitlementSource, quota types.QuotaLedger, lookup AddressLookup, clock types.Clock, dailyLimit int) *TenantHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TenantHandler{
		tenants:    tenants,
		evaluator:  evaluator,
		quota:      quota,
		lookup:     lookup,
		clock:      clock,
		dailyLimit: dailyLimit,
	}
}

func (h *TenantHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tenants/me/entitlements", h.HandleEntitlements)
	r.Get("/tenants/me/features/{feature}", h.HandleFeature)
	r.Get("/tenants/me/quota", h.HandleQuotaPeek)
	r.Get("/tenants/address-lookup", h.HandleAddressLookup)
}

func (h *TenantHandler) callerTenant(r *http.Request) (*types.Tenant, error) {
	actor, err := requireActor(r)
	if err != nil {
		return nil, err
	}
	return h.tenants.GetByID(r.Context(), actor.TenantID)
}

// HandleEntitlements processes GET /tenants/me/entitlements.
func (h *TenantHandler) HandleEntitlements(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.callerTenant(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: h.evaluator.Snapshot(r.Context(), tenant),
	})
}

// featureDecisionResponse is the body for a single-feature check.
type featureDecisionResponse struct {
	Feature  types.FeatureFlag `json:"feature"`
	Decision types.Decision    `json:"decision"`
}

// HandleFeature processes GET /tenants/me/features/{feature}. A denied
// feature is a 200 with Allowed=false, never an error status.
func (h *TenantHandler) HandleFeature(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.callerTenant(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	feature := types.FeatureFlag(chi.URLParam(r, "feature"))
	decision := h.evaluator.CanUseFeature(r.Context(), tenant, feature)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: featureDecisionResponse{
		Feature:  feature,
		Decision: decision,
	}})
}

// quotaPeekResponse reports the day's counter alongside the configured
// limit so the dashboard can render remaining headroom.
type quotaPeekResponse struct {
	Quota     *types.DailyQuota `json:"quota"`
	Limit     int               `json:"limit"`
	Remaining int               `json:"remaining"`
}

// HandleQuotaPeek processes GET /tenants/me/quota?date=YYYY-MM-DD. The
// date defaults to today; an absent record reads as zero sends.
func (h *TenantHandler) HandleQuotaPeek(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.clock.Now().Format(types.QuotaDateLayout)
	} else if _, parseErr := time.Parse(types.QuotaDateLayout, date); parseErr != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"date must be formatted YYYY-MM-DD", parseErr))
		return
	}

	quota, err := h.quota.Peek(r.Context(), actor.TenantID, date)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	remaining := h.dailyLimit - quota.SentCount
	if remaining < 0 {
		remaining = 0
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: quotaPeekResponse{
		Quota:     quota,
		Limit:     h.dailyLimit,
		Remaining: remaining,
	}})
}

// HandleAddressLookup processes GET /tenants/address-lookup?postal_code=.
func (h *TenantHandler) HandleAddressLookup(w http.ResponseWriter, r *http.Request) {
	if _, err := requireActor(r); err != nil {
		core.Error(w, r, err)
		return
	}

	postalCode := r.URL.Query().Get("postal_code")
	if postalCode == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"postal_code query parameter is required", nil))
		return
	}

	address, err := h.lookup.Lookup(r.Context(), postalCode)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: address})
}
