package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agendly/internal/types"
)

// QuotaPurger deletes daily quota rows keyed strictly before a cutoff date.
type QuotaPurger interface {
	PurgeBefore(ctx context.Context, cutoff string) (int64, error)
}

// SessionPurger deletes sessions past their expiry.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// MaintenanceService runs the retention purges. Quota rows are append-only
// during the day and dead weight after the retention window; sessions
// expire individually and are swept in bulk here.
type MaintenanceService struct {
	quota    QuotaPurger
	sessions SessionPurger
	clock    types.Clock
	logger   *slog.Logger
}

// NewMaintenanceService creates a MaintenanceService.
func NewMaintenanceService(quota QuotaPurger, sessions SessionPurger, clock types.Clock, logger *slog.Logger) *MaintenanceService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceService{
		quota:    quota,
		sessions: sessions,
		clock:    clock,
		logger:   logger,
	}
}

// PurgeQuotaRecords deletes quota rows dated before now minus retention.
// The cutoff is a calendar date, matching the ledger's key format; rows on
// the cutoff date itself are kept.
func (m *MaintenanceService) PurgeQuotaRecords(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := m.clock.Now().Add(-retention).Format(types.QuotaDateLayout)

	deleted, err := m.quota.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging quota records: %w", err)
	}

	if deleted > 0 {
		m.logger.InfoContext(ctx, "purged quota records",
			"deleted", deleted,
			"cutoff", cutoff,
		)
	}
	return deleted, nil
}

// PurgeSessions deletes all expired sessions.
func (m *MaintenanceService) PurgeSessions(ctx context.Context) (int64, error) {
	deleted, err := m.sessions.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}

	if deleted > 0 {
		m.logger.InfoContext(ctx, "purged expired sessions",
			"deleted", deleted,
		)
	}
	return deleted, nil
}
