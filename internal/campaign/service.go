// Package campaign implements tenant-triggered bulk messaging: the API-side
// dispatch that fans a campaign out into per-recipient send jobs, the
// worker-side delivery that re-checks entitlement and quota per message,
// and the compressed delivery-log export.
package campaign

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"agendly/internal/types"
)

// maxCampaignRecipients bounds a single campaign dispatch. Larger audiences
// must be split across campaigns so one dispatch cannot monopolize the
// queue or the tenant's daily quota in a single call.
const maxCampaignRecipients = 500

// CampaignStore is the service's view of the campaigns table.
type CampaignStore interface {
	Create(ctx context.Context, campaign *types.Campaign) error
	GetByID(ctx context.Context, tenantID, id string) (*types.Campaign, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status types.CampaignStatus) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*types.Campaign, error)
}

// CustomerLister provides the recipient list for a tenant.
type CustomerLister interface {
	ListByTenant(ctx context.Context, tenantID string) ([]*types.Customer, error)
}

// TenantReader loads the tenant whose entitlement gates the dispatch.
type TenantReader interface {
	GetByID(ctx context.Context, tenantID string) (*types.Tenant, error)
}

// JobEnqueuer hands the per-recipient jobs to the queue.
type JobEnqueuer interface {
	EnqueueBatch(ctx context.Context, jobs []types.SendJob, reason string) (int, error)
}

// DispatchRequest is the API payload for starting a campaign.
type DispatchRequest struct {
	Name        string          `json:"name" validate:"required,max=120"`
	MessageText string          `json:"message_text" validate:"required,max=4096"`
	MediaType   types.MediaType `json:"media_type,omitempty"`
	MediaURL    string          `json:"media_url,omitempty" validate:"omitempty,url"`
}

// ServiceConfig holds the dependencies for creating a campaign Service.
type ServiceConfig struct {
	Campaigns CampaignStore
	Customers CustomerLister
	Tenants   TenantReader
	Evaluator types.AccessEvaluator
	Queue     JobEnqueuer
	Clock     types.Clock
	Logger    *slog.Logger

	// MediaURLCheck vets tenant-supplied media URLs before any job is
	// enqueued. Optional; when nil no check runs. Production wires
	// security.ValidateURL here.
	MediaURLCheck func(ctx context.Context, rawURL string) error
}

// Service owns campaign dispatch. Delivery decisions stay with the worker;
// the service only verifies the tenant may run campaigns at all and pins
// the quota date the whole batch will charge against.
type Service struct {
	campaigns     CampaignStore
	customers     CustomerLister
	tenants       TenantReader
	evaluator     types.AccessEvaluator
	queue         JobEnqueuer
	clock         types.Clock
	logger        *slog.Logger
	mediaURLCheck func(ctx context.Context, rawURL string) error
}

// NewService creates a campaign Service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		campaigns:     cfg.Campaigns,
		customers:     cfg.Customers,
		tenants:       cfg.Tenants,
		evaluator:     cfg.Evaluator,
		queue:         cfg.Queue,
		clock:         clock,
		logger:        logger,
		mediaURLCheck: cfg.MediaURLCheck,
	}
}

// Dispatch creates a campaign over the tenant's customers with phone
// numbers and enqueues one send job per recipient. The quota date is pinned
// here so a batch straddling midnight still charges the day it started.
func (s *Service) Dispatch(ctx context.Context, tenantID string, req DispatchRequest) (*types.Campaign, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if req.MediaURL != "" && s.mediaURLCheck != nil {
		if err := s.mediaURLCheck(ctx, req.MediaURL); err != nil {
			return nil, types.NewAppError(
				types.ErrCodeValidationMediaURL,
				"media URL is not reachable from this platform",
				err,
			)
		}
	}

	decision := s.evaluator.CanUseFeature(ctx, tenant, types.FeatureBulkMessaging)
	if !decision.Allowed {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodePermissionFeature,
			"plan does not allow bulk messaging",
			nil,
			map[string]any{"reason": string(decision.Reason)},
		)
	}

	customers, err := s.customers.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	recipients := make([]*types.Customer, 0, len(customers))
	for _, c := range customers {
		if c.Phone == "" {
			continue
		}
		recipients = append(recipients, c)
	}

	if len(recipients) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"campaign has no reachable recipients",
			nil,
		)
	}
	if len(recipients) > maxCampaignRecipients {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationBatchSize,
			"campaign exceeds the recipient limit",
			nil,
			map[string]any{"recipients": len(recipients), "limit": maxCampaignRecipients},
		)
	}

	now := s.clock.Now()
	campaign := &types.Campaign{
		ID:             "cmp_" + uuid.New().String(),
		TenantID:       tenantID,
		Name:           req.Name,
		MessageText:    req.MessageText,
		MediaType:      req.MediaType,
		MediaURL:       req.MediaURL,
		Status:         types.CampaignStatusDraft,
		RecipientCount: len(recipients),
		QuotaDate:      now.Format(types.QuotaDateLayout),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	jobs := make([]types.SendJob, 0, len(recipients))
	traceID := types.GetRequestID(ctx)
	for _, c := range recipients {
		jobs = append(jobs, types.SendJob{
			JobID:      "job_" + uuid.New().String(),
			TraceID:    traceID,
			CampaignID: campaign.ID,
			TenantID:   tenantID,
			Number:     c.Phone,
			Text:       req.MessageText,
			MediaType:  req.MediaType,
			MediaURL:   req.MediaURL,
			Feature:    types.FeatureBulkMessaging,
			QuotaDate:  campaign.QuotaDate,
		})
	}

	accepted, err := s.queue.EnqueueBatch(ctx, jobs, "campaign")
	if err != nil {
		if stErr := s.campaigns.UpdateStatus(ctx, tenantID, campaign.ID, types.CampaignStatusFailed); stErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark campaign failed",
				"campaign_id", campaign.ID,
				"error", stErr,
			)
		}
		return nil, err
	}

	if err := s.campaigns.UpdateStatus(ctx, tenantID, campaign.ID, types.CampaignStatusDispatched); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark campaign dispatched",
			"campaign_id", campaign.ID,
			"error", err,
		)
	}
	campaign.Status = types.CampaignStatusDispatched

	s.logger.InfoContext(ctx, "campaign dispatched",
		"campaign_id", campaign.ID,
		"tenant_id", tenantID,
		"recipients", len(recipients),
		"accepted", accepted,
		"quota_date", campaign.QuotaDate,
	)
	return campaign, nil
}

// Get returns one campaign scoped to the tenant.
func (s *Service) Get(ctx context.Context, tenantID, campaignID string) (*types.Campaign, error) {
	return s.campaigns.GetByID(ctx, tenantID, campaignID)
}

// List returns the tenant's most recent campaigns.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]*types.Campaign, error) {
	return s.campaigns.ListByTenant(ctx, tenantID, limit)
}
