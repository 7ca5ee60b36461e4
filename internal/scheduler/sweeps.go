// Package scheduler implements the scheduled batch jobs: the birthday and
// return-visit reminder sweeps that fan out over connected tenants, and the
// maintenance purges for quota rows and expired sessions.
//
// Sweeps process tenants with bounded concurrency and collect per-tenant
// outcomes into a SweepSummary. One tenant's failure never aborts a sweep;
// it is counted and reported instead. There is no mid-sweep cancellation
// beyond the context of the individual outbound calls.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"agendly/internal/types"
)

// returnVisitAfter is how long without a visit before a customer gets a
// come-back reminder.
const returnVisitAfter = 60 * 24 * time.Hour

// TenantLister provides the sweep population: tenants with a connected
// WhatsApp instance.
type TenantLister interface {
	ListConnected(ctx context.Context) ([]*types.Tenant, error)
}

// CustomerSweepStore reads the customer columns the sweeps select on.
type CustomerSweepStore interface {
	ListBirthdaysOn(ctx context.Context, tenantID string, month time.Month, day int) ([]*types.Customer, error)
	ListReturnVisitDue(ctx context.Context, tenantID string, cutoff time.Time) ([]*types.Customer, error)
}

// JobEnqueuer hands reminder sends to the campaign queue. Delivery-time
// entitlement and quota checks stay with the worker.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job types.SendJob, reason string) error
}

// SweepConfig holds the dependencies for creating a SweepService.
type SweepConfig struct {
	Tenants     TenantLister
	Customers   CustomerSweepStore
	Evaluator   types.AccessEvaluator
	Queue       JobEnqueuer
	Concurrency int
	Clock       types.Clock
	Logger      *slog.Logger
	Metrics     types.MetricsCollector
}

// SweepService runs the reminder sweeps.
type SweepService struct {
	tenants     TenantLister
	customers   CustomerSweepStore
	evaluator   types.AccessEvaluator
	queue       JobEnqueuer
	concurrency int
	clock       types.Clock
	logger      *slog.Logger
	metrics     types.MetricsCollector
}

// NewSweepService creates a SweepService.
func NewSweepService(cfg SweepConfig) *SweepService {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepService{
		tenants:     cfg.Tenants,
		customers:   cfg.Customers,
		evaluator:   cfg.Evaluator,
		queue:       cfg.Queue,
		concurrency: concurrency,
		clock:       clock,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// tenantOutcome is one tenant's contribution to a sweep summary.
type tenantOutcome struct {
	sent    int
	skipped bool
	err     error
}

// RunBirthdaySweep enqueues a birthday message for every customer of every
// entitled tenant whose birthday falls on today's month and day.
func (s *SweepService) RunBirthdaySweep(ctx context.Context) (*types.SweepSummary, error) {
	now := s.clock.Now()
	return s.run(ctx, types.SweepBirthday, func(ctx context.Context, tenant *types.Tenant) tenantOutcome {
		if !s.evaluator.HasFeature(ctx, tenant, types.FeatureBirthdayReminder) {
			return tenantOutcome{skipped: true}
		}

		customers, err := s.customers.ListBirthdaysOn(ctx, tenant.ID, now.Month(), now.Day())
		if err != nil {
			return tenantOutcome{err: fmt.Errorf("list birthdays: %w", err)}
		}

		return s.enqueueReminders(ctx, tenant, customers, now, "birthday",
			types.FeatureBirthdayReminder, func(c *types.Customer) string {
				return fmt.Sprintf("Feliz aniversário, %s! 🎉", c.Name)
			})
	})
}

// RunReturnVisitSweep enqueues a come-back message for customers whose last
// visit is older than the return-visit window.
func (s *SweepService) RunReturnVisitSweep(ctx context.Context) (*types.SweepSummary, error) {
	now := s.clock.Now()
	cutoff := now.Add(-returnVisitAfter)
	return s.run(ctx, types.SweepReturnVisit, func(ctx context.Context, tenant *types.Tenant) tenantOutcome {
		if !s.evaluator.HasFeature(ctx, tenant, types.FeaturePostVisitFeedback) {
			return tenantOutcome{skipped: true}
		}

		customers, err := s.customers.ListReturnVisitDue(ctx, tenant.ID, cutoff)
		if err != nil {
			return tenantOutcome{err: fmt.Errorf("list return visits due: %w", err)}
		}

		return s.enqueueReminders(ctx, tenant, customers, now, "return_visit",
			types.FeaturePostVisitFeedback, func(c *types.Customer) string {
				return fmt.Sprintf("Olá %s, sentimos sua falta! Que tal agendar uma nova visita?", c.Name)
			})
	})
}

// enqueueReminders builds one SendJob per customer with the quota date
// pinned to the sweep's start time. The job carries the sweep's gating
// feature so the worker re-checks the entitlement that admitted the
// tenant here, not the bulk-messaging one.
func (s *SweepService) enqueueReminders(ctx context.Context, tenant *types.Tenant, customers []*types.Customer, now time.Time, reason string, feature types.FeatureFlag, message func(*types.Customer) string) tenantOutcome {
	out := tenantOutcome{}
	quotaDate := now.Format(types.QuotaDateLayout)

	for _, c := range customers {
		if c.Phone == "" {
			continue
		}
		job := types.SendJob{
			JobID:     "job_" + uuid.New().String(),
			TraceID:   types.GetRequestID(ctx),
			TenantID:  tenant.ID,
			Number:    c.Phone,
			Text:      message(c),
			Feature:   feature,
			QuotaDate: quotaDate,
		}
		if err := s.queue.Enqueue(ctx, job, reason); err != nil {
			out.err = fmt.Errorf("enqueue reminder for %s: %w", c.ID, err)
			return out
		}
		out.sent++
	}
	return out
}

// run executes one sweep over all connected tenants with bounded
// concurrency, collecting outcomes under a mutex.
func (s *SweepService) run(ctx context.Context, sweep types.SweepType, process func(ctx context.Context, tenant *types.Tenant) tenantOutcome) (*types.SweepSummary, error) {
	startedAt := s.clock.Now()

	tenants, err := s.tenants.ListConnected(ctx)
	if err != nil {
		return nil, err
	}

	summary := &types.SweepSummary{
		Sweep:     sweep,
		Processed: len(tenants),
		StartedAt: startedAt,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, tenant := range tenants {
		g.Go(func() error {
			out := process(gctx, tenant)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case out.err != nil:
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", tenant.ID, out.err))
			case out.skipped:
				summary.Skipped++
			default:
				summary.Sent += out.sent
			}
			// Failures stay on the summary, never on the group.
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = s.clock.Now().Sub(startedAt).String()

	if s.metrics != nil {
		s.metrics.RecordSweep(sweep, summary.Processed, summary.Failed)
	}

	s.logger.InfoContext(ctx, "sweep complete",
		"sweep", string(sweep),
		"processed", summary.Processed,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}
