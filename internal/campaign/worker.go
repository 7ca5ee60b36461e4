package campaign

import (
	"context"
	"errors"
	"log/slog"

	"agendly/internal/types"
)

// SendRecorder appends delivery-log rows.
type SendRecorder interface {
	Insert(ctx context.Context, rec *types.SendRecord) error
}

// WorkerConfig holds the dependencies for creating a Worker.
type WorkerConfig struct {
	Tenants    TenantReader
	Evaluator  types.AccessEvaluator
	Quota      types.QuotaLedger
	Gateway    types.MessagingGateway
	Records    SendRecorder
	DailyLimit int
	Clock      types.Clock
	Logger     *slog.Logger
	Metrics    types.MetricsCollector
}

// Worker delivers one SendJob at a time. Entitlement and quota are checked
// here, at delivery time, so a tenant downgraded mid-campaign stops sending
// with jobs still on the queue.
type Worker struct {
	tenants    TenantReader
	evaluator  types.AccessEvaluator
	quota      types.QuotaLedger
	gateway    types.MessagingGateway
	records    SendRecorder
	dailyLimit int
	clock      types.Clock
	logger     *slog.Logger
	metrics    types.MetricsCollector
}

// NewWorker creates a Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		tenants:    cfg.Tenants,
		evaluator:  cfg.Evaluator,
		quota:      cfg.Quota,
		gateway:    cfg.Gateway,
		records:    cfg.Records,
		dailyLimit: cfg.DailyLimit,
		clock:      clock,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

// ProcessJob handles a single send. The returned error means the job should
// be redelivered; skips (lost entitlement, exhausted quota) are terminal
// outcomes recorded in the delivery log, not errors.
func (w *Worker) ProcessJob(ctx context.Context, job types.SendJob) (types.SendStatus, error) {
	tenant, err := w.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundTenant {
			// The tenant was deleted after dispatch. Nothing to retry.
			w.record(ctx, job, types.SendStatusSkipped, "tenant deleted")
			return types.SendStatusSkipped, nil
		}
		return types.SendStatusFailed, err
	}

	// Sweep reminders carry their own gating feature; a campaign job is
	// gated on bulk messaging.
	feature := job.Feature
	if feature == "" {
		feature = types.FeatureBulkMessaging
	}
	decision := w.evaluator.CanUseFeature(ctx, tenant, feature)
	if !decision.Allowed {
		w.logger.InfoContext(ctx, "send skipped, entitlement lost since dispatch",
			"job_id", job.JobID,
			"tenant_id", job.TenantID,
			"campaign_id", job.CampaignID,
			"feature", string(feature),
			"reason", string(decision.Reason),
		)
		w.record(ctx, job, types.SendStatusSkipped, string(decision.Reason))
		return types.SendStatusSkipped, nil
	}

	result, err := w.quota.CheckAndIncrement(ctx, job.TenantID, job.QuotaDate, job.CampaignID, w.dailyLimit)
	if err != nil {
		return types.SendStatusFailed, err
	}
	if !result.Allowed {
		w.logger.InfoContext(ctx, "send skipped, daily quota exhausted",
			"job_id", job.JobID,
			"tenant_id", job.TenantID,
			"campaign_id", job.CampaignID,
			"quota_date", job.QuotaDate,
		)
		w.record(ctx, job, types.SendStatusSkipped, string(types.ErrCodeLimitDailyMessages))
		return types.SendStatusSkipped, nil
	}

	if err := w.deliver(ctx, tenant, job); err != nil {
		w.record(ctx, job, types.SendStatusFailed, err.Error())
		return types.SendStatusFailed, err
	}

	w.record(ctx, job, types.SendStatusSent, "")
	return types.SendStatusSent, nil
}

func (w *Worker) deliver(ctx context.Context, tenant *types.Tenant, job types.SendJob) error {
	if job.MediaType != "" {
		return w.gateway.SendMedia(ctx, tenant.InstanceToken, job.Number, job.MediaType, job.MediaURL)
	}
	return w.gateway.SendText(ctx, tenant.InstanceToken, job.Number, job.Text)
}

// record inserts the delivery-log row. A log insert failure never changes
// the send outcome; the message already went out or definitively did not.
func (w *Worker) record(ctx context.Context, job types.SendJob, status types.SendStatus, failReason string) {
	if w.metrics != nil {
		w.metrics.RecordSend(status)
	}

	rec := &types.SendRecord{
		CampaignID: job.CampaignID,
		TenantID:   job.TenantID,
		Number:     job.Number,
		Status:     status,
		FailReason: failReason,
		SentAt:     w.clock.Now(),
	}
	if err := w.records.Insert(ctx, rec); err != nil {
		w.logger.ErrorContext(ctx, "failed to insert send record",
			"job_id", job.JobID,
			"campaign_id", job.CampaignID,
			"status", string(status),
			"error", err,
		)
	}
}
