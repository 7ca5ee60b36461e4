package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agendly/internal/campaign"
	"agendly/internal/core"
	"agendly/internal/types"
)

// defaultCampaignListLimit bounds GET /campaigns when no limit is given.
const defaultCampaignListLimit = 50

// CampaignService dispatches and reads campaigns. Implemented by
// campaign.Service.
type CampaignService interface {
	Dispatch(ctx context.Context, tenantID string, req campaign.DispatchRequest) (*types.Campaign, error)
	Get(ctx context.Context, tenantID, campaignID string) (*types.Campaign, error)
	List(ctx context.Context, tenantID string, limit int) ([]*types.Campaign, error)
}

// CampaignExporter streams a campaign's delivery log. Implemented by
// campaign.Exporter.
type CampaignExporter interface {
	Export(ctx context.Context, tenantID, campaignID string, w io.Writer) (int, error)
}

// CampaignsHandler serves the bulk-messaging endpoints.
type CampaignsHandler struct {
	campaigns CampaignService
	exporter  CampaignExporter
	logger    *slog.Logger
	validator *core.Validator
}

func NewCampaignsHandler(campaigns CampaignService, exporter CampaignExporter, logger *slog.Logger, validator *core.Validator) *CampaignsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CampaignsHandler{
		campaigns: campaigns,
		exporter:  exporter,
		logger:    logger,
		validator: validator,
	}
}

func (h *CampaignsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/campaigns", h.HandleDispatch)
	r.Get("/campaigns", h.HandleList)
	r.Get("/campaigns/{id}", h.HandleGet)
	r.Get("/campaigns/{id}/export", h.HandleExport)
}

// HandleDispatch processes POST /campaigns. The service checks the
// bulk-messaging entitlement and enqueues one send job per recipient;
// delivery-time quota enforcement happens in the worker.
func (h *CampaignsHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req campaign.DispatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	cmp, err := h.campaigns.Dispatch(r.Context(), actor.TenantID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: cmp})
}

// HandleList processes GET /campaigns?limit=.
func (h *CampaignsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := defaultCampaignListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				"limit must be a positive integer", parseErr))
			return
		}
		limit = parsed
	}

	campaigns, err := h.campaigns.List(r.Context(), actor.TenantID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: campaigns})
}

// HandleGet processes GET /campaigns/{id}.
func (h *CampaignsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cmp, err := h.campaigns.Get(r.Context(), actor.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cmp})
}

// HandleExport processes GET /campaigns/{id}/export. The delivery log is
// streamed as zstd-compressed JSON lines; errors after the first write
// can only be logged, the status line is already gone.
func (h *CampaignsHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	campaignID := chi.URLParam(r, "id")
	// Resolve first so a missing campaign is still a clean 404.
	if _, err := h.campaigns.Get(r.Context(), actor.TenantID, campaignID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="`+campaignID+`.jsonl.zst"`)

	count, err := h.exporter.Export(r.Context(), actor.TenantID, campaignID, w)
	if err != nil {
		h.logger.Error("campaign export failed mid-stream",
			"campaign_id", campaignID,
			"records_written", count,
			"error", err,
		)
		return
	}
}
