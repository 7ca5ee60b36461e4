package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agendly/internal/core"
	"agendly/internal/types"
)

// SweepRunner runs the scheduled tenant sweeps. Implemented by
// scheduler.SweepService.
type SweepRunner interface {
	RunBirthdaySweep(ctx context.Context) (*types.SweepSummary, error)
	RunReturnVisitSweep(ctx context.Context) (*types.SweepSummary, error)
}

// MaintenanceRunner purges aged rows. Implemented by
// scheduler.MaintenanceService.
type MaintenanceRunner interface {
	PurgeQuotaRecords(ctx context.Context, retention time.Duration) (int64, error)
	PurgeSessions(ctx context.Context) (int64, error)
}

// CronHandler terminates the scheduled-job endpoints. Every route runs
// behind the cron secret gate; these are invoked by the platform
// scheduler, never by browsers.
type CronHandler struct {
	sweeps         SweepRunner
	maintenance    MaintenanceRunner
	reconciler     WebhookReconciler
	quotaRetention time.Duration
	logger         *slog.Logger

	requireCronSecret func(http.Handler) http.Handler
}

// CronHandlerConfig bundles the dependencies of a CronHandler.
type CronHandlerConfig struct {
	Sweeps            SweepRunner
	Maintenance       MaintenanceRunner
	Reconciler        WebhookReconciler
	QuotaRetention    time.Duration
	Logger            *slog.Logger
	RequireCronSecret func(http.Handler) http.Handler
}

func NewCronHandler(cfg CronHandlerConfig) *CronHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CronHandler{
		sweeps:            cfg.Sweeps,
		maintenance:       cfg.Maintenance,
		reconciler:        cfg.Reconciler,
		quotaRetention:    cfg.QuotaRetention,
		logger:            logger,
		requireCronSecret: cfg.RequireCronSecret,
	}
}

func (h *CronHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cron", func(r chi.Router) {
		r.Use(h.requireCronSecret)
		r.Post("/birthday-sweep", h.HandleBirthdaySweep)
		r.Post("/return-visit-sweep", h.HandleReturnVisitSweep)
		r.Post("/webhook-sweep", h.HandleWebhookSweep)
		r.Post("/quota-maintenance", h.HandleQuotaMaintenance)
	})
}

// HandleBirthdaySweep processes POST /cron/birthday-sweep. The summary is
// returned with 200 even when some tenants failed; a sweep only errors as
// a whole when the tenant listing itself fails.
func (h *CronHandler) HandleBirthdaySweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sweeps.RunBirthdaySweep(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}

// HandleReturnVisitSweep processes POST /cron/return-visit-sweep.
func (h *CronHandler) HandleReturnVisitSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sweeps.RunReturnVisitSweep(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}

// HandleWebhookSweep processes POST /cron/webhook-sweep. It repairs every
// connected tenant's gateway webhook against its current entitlement.
func (h *CronHandler) HandleWebhookSweep(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reconciler.FixAll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	fixed := 0
	for _, report := range reports {
		if report.NeedsFix && report.Error == "" {
			fixed++
		}
	}
	h.logger.Info("webhook sweep completed",
		"tenants", len(reports),
		"fixed", fixed,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reports})
}

// HandleQuotaMaintenance processes POST /cron/quota-maintenance. It
// purges quota rows past the retention window and expired sessions in
// one pass; a failure in one purge does not skip the other.
func (h *CronHandler) HandleQuotaMaintenance(w http.ResponseWriter, r *http.Request) {
	result := map[string]any{}

	quotaPurged, quotaErr := h.maintenance.PurgeQuotaRecords(r.Context(), h.quotaRetention)
	result["quota_rows_purged"] = quotaPurged
	if quotaErr != nil {
		result["quota_error"] = quotaErr.Error()
	}

	sessionsPurged, sessErr := h.maintenance.PurgeSessions(r.Context())
	result["sessions_purged"] = sessionsPurged
	if sessErr != nil {
		result["session_error"] = sessErr.Error()
	}

	if quotaErr != nil && sessErr != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalDB,
			"maintenance failed", quotaErr))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}
