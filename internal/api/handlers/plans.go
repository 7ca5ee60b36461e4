package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"agendly/internal/core"
	"agendly/internal/types"
)

// PlansHandler serves the customer-facing plan listing. The listing hides
// free, deprecated, and zero-price plans; those remain resolvable by id.
type PlansHandler struct {
	catalog types.PlanCatalog
}

func NewPlansHandler(catalog types.PlanCatalog) *PlansHandler {
	return &PlansHandler{catalog: catalog}
}

func (h *PlansHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.HandleList)
	r.Get("/plans/{id}", h.HandleGet)
}

// HandleList processes GET /plans.
func (h *PlansHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.ListActivePlans(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plans})
}

// HandleGet processes GET /plans/{id}.
func (h *PlansHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	plan, err := h.catalog.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plan})
}
