package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// CampaignRepository provides data access for the campaigns table.
type CampaignRepository struct {
	db DBTX
}

// NewCampaignRepository creates a new CampaignRepository backed by the given
// database connection (pool or transaction).
func NewCampaignRepository(db DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `c.id, c.tenant_id, c.name, c.message_text,
	c.media_type, c.media_url, c.status, c.recipient_count, c.quota_date,
	c.created_at, c.updated_at`

func scanCampaign(row pgx.Row) (*types.Campaign, error) {
	var c types.Campaign
	var mediaType, mediaURL *string
	var quotaDate time.Time

	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&c.MessageText,
		&mediaType,
		&mediaURL,
		&c.Status,
		&c.RecipientCount,
		&quotaDate,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if mediaType != nil {
		c.MediaType = types.MediaType(*mediaType)
	}
	if mediaURL != nil {
		c.MediaURL = *mediaURL
	}
	c.QuotaDate = quotaDate.Format(types.QuotaDateLayout)
	return &c, nil
}

// Create inserts a new campaign record. The quota date is pinned here, at
// campaign creation, and travels with every send job so a run that straddles
// midnight keeps charging the day it started on.
func (r *CampaignRepository) Create(ctx context.Context, campaign *types.Campaign) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO campaigns (id, tenant_id, name, message_text, media_type,
		 media_url, status, recipient_count, quota_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()), NOW())`,
		campaign.ID,
		campaign.TenantID,
		campaign.Name,
		campaign.MessageText,
		nilIfEmpty(string(campaign.MediaType)),
		nilIfEmpty(campaign.MediaURL),
		campaign.Status,
		campaign.RecipientCount,
		campaign.QuotaDate,
		nilIfZeroTime(campaign.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create campaign", err)
	}
	return nil
}

// GetByID retrieves a campaign scoped to a tenant.
func (r *CampaignRepository) GetByID(ctx context.Context, tenantID, id string) (*types.Campaign, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+campaignColumns+`
		 FROM campaigns c
		 WHERE c.id = $1 AND c.tenant_id = $2`,
		id,
		tenantID,
	)

	campaign, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCampaign, "campaign not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve campaign", err)
	}
	return campaign, nil
}

// UpdateStatus transitions a campaign's lifecycle state.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, tenantID, id string, status types.CampaignStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE campaigns SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND tenant_id = $3`,
		status,
		id,
		tenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update campaign status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCampaign, "campaign not found", nil)
	}
	return nil
}

// ListByTenant retrieves a tenant's campaigns, newest first.
func (r *CampaignRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*types.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+campaignColumns+`
		 FROM campaigns c
		 WHERE c.tenant_id = $1
		 ORDER BY c.created_at DESC
		 LIMIT $2`,
		tenantID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list campaigns", err)
	}
	defer rows.Close()

	var campaigns []*types.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan campaign row", err)
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating campaign rows", err)
	}
	return campaigns, nil
}

// SendRecordRepo provides data access for the send_records table, the
// per-message delivery log written by the campaign worker and the sweeps.
type SendRecordRepo struct {
	db DBTX
}

// NewSendRecordRepo creates a new SendRecordRepo backed by the given
// database connection (pool or transaction).
func NewSendRecordRepo(db DBTX) *SendRecordRepo {
	return &SendRecordRepo{db: db}
}

// Insert appends a delivery outcome to the log.
func (r *SendRecordRepo) Insert(ctx context.Context, rec *types.SendRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO send_records (campaign_id, tenant_id, number, status,
		 fail_reason, sent_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		rec.CampaignID,
		rec.TenantID,
		rec.Number,
		rec.Status,
		nilIfEmpty(rec.FailReason),
		nilIfZeroTime(rec.SentAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert send record", err)
	}
	return nil
}

// ListByCampaign retrieves the full delivery log for a campaign in send
// order. The report export streams these rows into the compressed archive.
func (r *SendRecordRepo) ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]*types.SendRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, campaign_id, tenant_id, number, status, fail_reason, sent_at
		 FROM send_records
		 WHERE campaign_id = $1 AND tenant_id = $2
		 ORDER BY id ASC`,
		campaignID,
		tenantID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list send records", err)
	}
	defer rows.Close()

	var records []*types.SendRecord
	for rows.Next() {
		var rec types.SendRecord
		var failReason *string
		if err := rows.Scan(
			&rec.ID,
			&rec.CampaignID,
			&rec.TenantID,
			&rec.Number,
			&rec.Status,
			&failReason,
			&rec.SentAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan send record row", err)
		}
		if failReason != nil {
			rec.FailReason = *failReason
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating send record rows", err)
	}
	return records, nil
}
