package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agendly/internal/auth"
	"agendly/internal/catalog"
	"agendly/internal/core"
	"agendly/internal/types"
)

// CatalogAdmin exposes the catalog mutations reserved for operators.
type CatalogAdmin interface {
	SyncPlans(ctx context.Context) (*catalog.SyncResult, error)
}

// PlanWriter persists a single plan definition. Implemented by
// db.PlanRepository.
type PlanWriter interface {
	Upsert(ctx context.Context, plan *types.Plan) error
}

// WebhookReconciler drives the gateway webhook reconciliation sweeps.
// Implemented by reconcile.Reconciler.
type WebhookReconciler interface {
	Validate(ctx context.Context, tenantID string) (*types.WebhookReport, error)
	Fix(ctx context.Context, tenantID string) (*types.WebhookReport, error)
	ValidateAll(ctx context.Context) ([]*types.WebhookReport, error)
	FixAll(ctx context.Context) ([]*types.WebhookReport, error)
}

// AdminDiagnoser explains which admin mechanisms vouch for a principal.
// Implemented by auth.AdminAuthorizer.
type AdminDiagnoser interface {
	Diagnose(ctx context.Context, p *auth.Principal) auth.Diagnosis
}

// UserBootstrapper creates the first administrator account.
type UserBootstrapper interface {
	Create(ctx context.Context, user *types.User) error
}

// AdminDirectoryWriter records a directory entry for a new administrator.
// Implemented by db.AdminDirectoryRepo.
type AdminDirectoryWriter interface {
	Upsert(ctx context.Context, rec *types.AdminRecord) error
}

// PasswordHasher hashes the bootstrap password. Implemented by
// auth.LoginService.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// AdminHandler serves the operator endpoints. Every route except
// bootstrap runs behind the composite admin authorizer; bootstrap is
// gated by the setup secret instead, so the very first administrator can
// be created on an empty installation.
type AdminHandler struct {
	catalog    CatalogAdmin
	plans      PlanWriter
	quota      types.QuotaLedger
	reconciler WebhookReconciler
	diagnoser  AdminDiagnoser
	users      UserBootstrapper
	directory  AdminDirectoryWriter
	hasher     PasswordHasher
	clock      types.Clock
	logger     *slog.Logger
	validator  *core.Validator

	requireAdmin       func(http.Handler) http.Handler
	requireSetupSecret func(http.Handler) http.Handler
}

// AdminHandlerConfig bundles the dependencies of an AdminHandler.
type AdminHandlerConfig struct {
	Catalog    CatalogAdmin
	Plans      PlanWriter
	Quota      types.QuotaLedger
	Reconciler WebhookReconciler
	Diagnoser  AdminDiagnoser
	Users      UserBootstrapper
	Directory  AdminDirectoryWriter
	Hasher     PasswordHasher
	Clock      types.Clock
	Logger     *slog.Logger
	Validator  *core.Validator

	// RequireAdmin and RequireSetupSecret are the core middleware gates,
	// injected so this package does not depend on Server wiring.
	RequireAdmin       func(http.Handler) http.Handler
	RequireSetupSecret func(http.Handler) http.Handler
}

func NewAdminHandler(cfg AdminHandlerConfig) *AdminHandler {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		catalog:            cfg.Catalog,
		plans:              cfg.Plans,
		quota:              cfg.Quota,
		reconciler:         cfg.Reconciler,
		diagnoser:          cfg.Diagnoser,
		users:              cfg.Users,
		directory:          cfg.Directory,
		hasher:             cfg.Hasher,
		clock:              clock,
		logger:             logger,
		validator:          cfg.Validator,
		requireAdmin:       cfg.RequireAdmin,
		requireSetupSecret: cfg.RequireSetupSecret,
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/plans/sync", h.HandlePlansSync)
			r.Put("/plans/{id}", h.HandlePlanUpsert)
			r.Post("/tenants/{id}/quota/reset", h.HandleQuotaReset)
			r.Get("/tenants/{id}/webhook/validate", h.HandleWebhookValidate)
			r.Post("/tenants/{id}/webhook/fix", h.HandleWebhookFix)
			r.Get("/webhooks/validate-all", h.HandleWebhookValidateAll)
			r.Post("/webhooks/fix-all", h.HandleWebhookFixAll)
			r.Get("/authz/diagnose", h.HandleAuthzDiagnose)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireSetupSecret)
			r.Post("/bootstrap", h.HandleBootstrap)
		})
	})
}

// HandlePlansSync processes POST /admin/plans/sync. The sync is
// idempotent; repeating it reports zero changes.
func (h *AdminHandler) HandlePlansSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalog.SyncPlans(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// PlanUpsertRequest is the body for PUT /admin/plans/{id}.
type PlanUpsertRequest struct {
	Name         string              `json:"name" validate:"required"`
	Description  string              `json:"description"`
	PriceCents   int64               `json:"price_cents" validate:"min=0"`
	DurationDays int                 `json:"duration_days" validate:"min=0"`
	Features     []types.FeatureFlag `json:"features"`
	IsFeatured   bool                `json:"is_featured"`
	Status       types.PlanStatus    `json:"status" validate:"required,oneof=active inactive"`
}

// HandlePlanUpsert processes PUT /admin/plans/{id}.
func (h *AdminHandler) HandlePlanUpsert(w http.ResponseWriter, r *http.Request) {
	var req PlanUpsertRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan := &types.Plan{
		ID:           chi.URLParam(r, "id"),
		Name:         req.Name,
		Description:  req.Description,
		PriceCents:   req.PriceCents,
		DurationDays: req.DurationDays,
		Features:     req.Features,
		IsFeatured:   req.IsFeatured,
		Status:       req.Status,
	}
	if err := h.plans.Upsert(r.Context(), plan); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("plan upserted by operator",
		"plan_id", plan.ID,
		"operator", operatorEmail(r),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plan})
}

// HandleQuotaReset processes POST /admin/tenants/{id}/quota/reset?date=.
// The date defaults to today. Reset deletes the record outright; the next
// send re-creates it from zero.
func (h *AdminHandler) HandleQuotaReset(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.clock.Now().Format(types.QuotaDateLayout)
	} else if _, err := time.Parse(types.QuotaDateLayout, date); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"date must be formatted YYYY-MM-DD", err))
		return
	}

	if err := h.quota.Reset(r.Context(), tenantID, date); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("quota reset by operator",
		"tenant_id", tenantID,
		"date", date,
		"operator", operatorEmail(r),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{
		"tenant_id": tenantID,
		"date":      date,
	}})
}

// HandleWebhookValidate processes GET /admin/tenants/{id}/webhook/validate.
func (h *AdminHandler) HandleWebhookValidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Validate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// HandleWebhookFix processes POST /admin/tenants/{id}/webhook/fix.
func (h *AdminHandler) HandleWebhookFix(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Fix(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// HandleWebhookValidateAll processes GET /admin/webhooks/validate-all.
func (h *AdminHandler) HandleWebhookValidateAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reconciler.ValidateAll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reports})
}

// HandleWebhookFixAll processes POST /admin/webhooks/fix-all.
func (h *AdminHandler) HandleWebhookFixAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reconciler.FixAll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reports})
}

// HandleAuthzDiagnose processes GET /admin/authz/diagnose. It reports the
// verdict of each admin mechanism for the calling principal, for
// debugging access problems without reading server logs.
func (h *AdminHandler) HandleAuthzDiagnose(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	diagnosis := h.diagnoser.Diagnose(r.Context(), &auth.Principal{
		UID:        actor.ID,
		Email:      actor.Email,
		TenantID:   actor.TenantID,
		AdminClaim: actor.Admin,
	})
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: diagnosis})
}

// BootstrapRequest is the body for POST /admin/bootstrap.
type BootstrapRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
}

// HandleBootstrap processes POST /admin/bootstrap. It creates an active
// user carrying the admin claim and a matching directory entry, so the
// new administrator passes both the claim and the directory checks. The
// route is gated by the setup secret, not by bearer auth.
func (h *AdminHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	hash, err := h.hasher.HashPassword(req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	email := auth.CanonicalizeEmail(req.Email)
	user := &types.User{
		ID:           "usr_" + uuid.NewString(),
		Email:        email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         types.RoleOwner,
		Status:       types.UserStatusActive,
		AdminClaim:   true,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.directory.Upsert(r.Context(), &types.AdminRecord{
		UID:    user.ID,
		Email:  email,
		Active: true,
	}); err != nil {
		// The user still holds the admin claim; the directory entry can
		// be repaired by a later bootstrap call for the same email.
		h.logger.Error("failed to record admin directory entry",
			"uid", user.ID,
			"error", err,
		)
	}

	h.logger.Info("administrator bootstrapped",
		"uid", user.ID,
		"email", email,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: user})
}

// operatorEmail names the acting administrator in audit logs.
func operatorEmail(r *http.Request) string {
	if actor, ok := types.GetActor(r.Context()); ok {
		return actor.Email
	}
	return ""
}
