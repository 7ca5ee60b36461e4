package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agendly/internal/core"
	"agendly/internal/types"
)

// CustomerStore persists a tenant's customers. Implemented by
// db.CustomerRepository.
type CustomerStore interface {
	Create(ctx context.Context, customer *types.Customer) error
	GetByID(ctx context.Context, tenantID, id string) (*types.Customer, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*types.Customer, error)
	RecordVisit(ctx context.Context, tenantID, id string, visitedAt time.Time) error
}

// CreateCustomerRequest is the body for POST /customers. Birthday is
// optional and formatted YYYY-MM-DD.
type CreateCustomerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"required,min=8,max=20"`
	Birthday string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
}

// CustomersHandler serves the tenant customer roster the sweeps and
// campaigns read from.
type CustomersHandler struct {
	store     CustomerStore
	clock     types.Clock
	logger    *slog.Logger
	validator *core.Validator
}

func NewCustomersHandler(store CustomerStore, clock types.Clock, logger *slog.Logger, validator *core.Validator) *CustomersHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomersHandler{store: store, clock: clock, logger: logger, validator: validator}
}

func (h *CustomersHandler) RegisterRoutes(r chi.Router) {
	r.Post("/customers", h.HandleCreate)
	r.Get("/customers", h.HandleList)
	r.Get("/customers/{id}", h.HandleGet)
	r.Post("/customers/{id}/visit", h.HandleRecordVisit)
}

// HandleCreate processes POST /customers.
func (h *CustomersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateCustomerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	var birthday *time.Time
	if req.Birthday != "" {
		day, parseErr := time.Parse(types.QuotaDateLayout, req.Birthday)
		if parseErr != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate,
				"birthday must be formatted YYYY-MM-DD", parseErr))
			return
		}
		birthday = &day
	}

	customer := &types.Customer{
		ID:       "cus_" + uuid.NewString(),
		TenantID: actor.TenantID,
		Name:     req.Name,
		Phone:    req.Phone,
		Birthday: birthday,
	}
	if err := h.store.Create(r.Context(), customer); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: customer})
}

// HandleList processes GET /customers.
func (h *CustomersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	customers, err := h.store.ListByTenant(r.Context(), actor.TenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: customers})
}

// HandleGet processes GET /customers/{id}.
func (h *CustomersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	customer, err := h.store.GetByID(r.Context(), actor.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: customer})
}

// HandleRecordVisit processes POST /customers/{id}/visit. The visit
// timestamp feeds the return-visit sweep's cutoff query.
func (h *CustomersHandler) HandleRecordVisit(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	visitedAt := h.clock.Now()
	if err := h.store.RecordVisit(r.Context(), actor.TenantID, id, visitedAt); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"customer_id": id,
		"visited_at":  visitedAt,
	}})
}
