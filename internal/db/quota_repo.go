package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// QuotaRepository provides data access for the daily_quotas table, the
// per-tenant per-day outbound message counter keyed by (tenant_id, quota_date).
// Rows are created lazily on the first send of the day; an absent row is
// equivalent to a count of zero.
type QuotaRepository struct {
	db DBTX
}

// NewQuotaRepository creates a new QuotaRepository backed by the given
// database connection (pool or transaction).
func NewQuotaRepository(db DBTX) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// CheckAndIncrement atomically reserves one send against the tenant's daily
// quota and returns the new count. The check and the increment are a single
// statement, so concurrent workers never over-admit past the limit the way a
// read-then-write sequence would.
//
// The upsert inserts a fresh row at count 1, or increments an existing row
// only while sent_count is still below the limit. When the limit is already
// reached the conditional UPDATE matches no row, RETURNING yields nothing,
// and the caller gets Allowed=false with the date unchanged.
//
// The campaign ID is appended to the row's campaign_ids set on first
// contact so a day's row records every campaign that charged against it.
// Sweep reminders charge with an empty campaign ID, which never enters
// the set.
func (r *QuotaRepository) CheckAndIncrement(
	ctx context.Context,
	tenantID string,
	date string,
	campaignID string,
	limit int,
) (types.QuotaResult, error) {
	// A non-positive limit denies without touching the database; the insert
	// arm of the upsert would otherwise admit one send at count 1.
	if limit <= 0 {
		return types.QuotaResult{Allowed: false, NewCount: 0}, nil
	}

	var newCount int
	err := r.db.QueryRow(ctx,
		`INSERT INTO daily_quotas (tenant_id, quota_date, sent_count, campaign_ids, updated_at)
		 VALUES ($1, $2, 1,
		   CASE WHEN $3 = '' THEN ARRAY[]::text[] ELSE ARRAY[$3] END, NOW())
		 ON CONFLICT (tenant_id, quota_date) DO UPDATE
		   SET sent_count = daily_quotas.sent_count + 1,
		       campaign_ids = CASE
		         WHEN $3 = '' OR $3 = ANY(daily_quotas.campaign_ids) THEN daily_quotas.campaign_ids
		         ELSE array_append(daily_quotas.campaign_ids, $3)
		       END,
		       updated_at = NOW()
		   WHERE daily_quotas.sent_count < $4
		 RETURNING sent_count`,
		tenantID,
		date,
		campaignID,
		limit,
	).Scan(&newCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conditional update matched no row: the quota is exhausted.
			return types.QuotaResult{Allowed: false, NewCount: limit}, nil
		}
		return types.QuotaResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed to increment daily quota", err)
	}

	return types.QuotaResult{Allowed: true, NewCount: newCount}, nil
}

// Peek returns the tenant's quota record for the given date without
// modifying it. A missing row is returned as a zero-count record, not an
// error, matching the lazy-creation semantics.
func (r *QuotaRepository) Peek(ctx context.Context, tenantID string, date string) (*types.DailyQuota, error) {
	var quota types.DailyQuota
	var quotaDate time.Time

	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, quota_date, sent_count, campaign_ids, updated_at
		 FROM daily_quotas
		 WHERE tenant_id = $1 AND quota_date = $2`,
		tenantID,
		date,
	).Scan(
		&quota.TenantID,
		&quotaDate,
		&quota.SentCount,
		&quota.CampaignIDs,
		&quota.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.DailyQuota{
				TenantID:  tenantID,
				Date:      date,
				SentCount: 0,
			}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve daily quota", err)
	}

	quota.Date = quotaDate.Format(types.QuotaDateLayout)
	return &quota, nil
}

// Reset deletes the tenant's quota record for the given date, returning the
// counter to its implicit zero state. Admin support tooling uses this to
// unblock a tenant after a false-positive quota exhaustion.
func (r *QuotaRepository) Reset(ctx context.Context, tenantID string, date string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM daily_quotas
		 WHERE tenant_id = $1 AND quota_date = $2`,
		tenantID,
		date,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset daily quota", err)
	}
	// Deleting an absent row is a successful reset: the counter is zero
	// either way.
	return nil
}

// PurgeBefore deletes all quota records older than the cutoff date and
// returns the number of rows removed. The maintenance sweep calls this to
// keep the table bounded; historical counts past the retention window have
// no consumer.
func (r *QuotaRepository) PurgeBefore(ctx context.Context, cutoff string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM daily_quotas
		 WHERE quota_date < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge quota records", err)
	}
	return tag.RowsAffected(), nil
}
