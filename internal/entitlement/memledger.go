package entitlement

import (
	"context"
	"sync"
	"time"

	"agendly/internal/types"
)

// MemoryLedger is an in-memory types.QuotaLedger guarded by a mutex. It
// carries the same semantics as the PostgreSQL-backed ledger (absent record
// means zero, reset deletes outright, the check and the increment are one
// critical section) and is used in tests and local development.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]*types.DailyQuota
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*types.DailyQuota)}
}

func ledgerKey(tenantID, date string) string {
	return tenantID + "|" + date
}

// CheckAndIncrement reserves one send against the day's counter, creating
// the record at count 1 on first contact. A non-positive limit denies.
func (l *MemoryLedger) CheckAndIncrement(_ context.Context, tenantID, date, campaignID string, limit int) (types.QuotaResult, error) {
	if limit <= 0 {
		return types.QuotaResult{Allowed: false, NewCount: 0}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(tenantID, date)
	rec, ok := l.records[key]
	if !ok {
		rec = &types.DailyQuota{TenantID: tenantID, Date: date}
		l.records[key] = rec
	}

	if rec.SentCount >= limit {
		return types.QuotaResult{Allowed: false, NewCount: rec.SentCount}, nil
	}

	rec.SentCount++
	rec.UpdatedAt = time.Now().UTC()
	// Sweep reminders charge with an empty campaign ID, which never
	// enters the set.
	if campaignID != "" && !containsString(rec.CampaignIDs, campaignID) {
		rec.CampaignIDs = append(rec.CampaignIDs, campaignID)
	}
	return types.QuotaResult{Allowed: true, NewCount: rec.SentCount}, nil
}

// Peek returns the day's record, or a zero-count record if absent.
func (l *MemoryLedger) Peek(_ context.Context, tenantID, date string) (*types.DailyQuota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[ledgerKey(tenantID, date)]; ok {
		cp := *rec
		cp.CampaignIDs = append([]string(nil), rec.CampaignIDs...)
		return &cp, nil
	}
	return &types.DailyQuota{TenantID: tenantID, Date: date}, nil
}

// Reset deletes the day's record outright.
func (l *MemoryLedger) Reset(_ context.Context, tenantID, date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, ledgerKey(tenantID, date))
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
