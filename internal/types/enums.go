package types

// FeatureFlag is an opaque token gating a specific automation capability.
// The plan catalog is the only place enumerating valid sets per plan.
type FeatureFlag string

const (
	FeatureReminder24h         FeatureFlag = "reminder-24h"
	FeatureReminder2h          FeatureFlag = "reminder-2h"
	FeaturePostVisitFeedback   FeatureFlag = "post-visit-feedback"
	FeatureBirthdayReminder    FeatureFlag = "birthday-reminder"
	FeatureBulkMessaging       FeatureFlag = "bulk-messaging"
	FeatureAIAutoReply         FeatureFlag = "ai-auto-reply"
	FeatureEscalationToHuman   FeatureFlag = "escalation-to-human"
	FeatureCallRejection       FeatureFlag = "call-rejection"
	FeatureManagerNotification FeatureFlag = "manager-notification"
)

// AllFeatureFlags lists every known feature flag, in dashboard display
// order. The entitlement snapshot iterates this to build the per-feature
// decision map.
var AllFeatureFlags = []FeatureFlag{
	FeatureReminder24h,
	FeatureReminder2h,
	FeaturePostVisitFeedback,
	FeatureBirthdayReminder,
	FeatureBulkMessaging,
	FeatureAIAutoReply,
	FeatureEscalationToHuman,
	FeatureCallRejection,
	FeatureManagerNotification,
}

// PlanStatus represents the lifecycle state of a catalog plan.
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusInactive PlanStatus = "inactive"
)

// DenialReason explains why a feature check was denied. Callers use the
// distinction to render "renew" versus "upgrade" prompts.
type DenialReason string

const (
	DenyNone             DenialReason = ""
	DenyAccessExpired    DenialReason = "access_expired"
	DenyPlanLacksFeature DenialReason = "plan_lacks_feature"
)

// UserRole defines authorization levels within a tenant.
type UserRole string

const (
	RoleOwner UserRole = "owner"
	RoleStaff UserRole = "staff"
)

// UserStatus represents the account lifecycle state of a user.
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusInvited UserStatus = "invited"
)

// SubscriptionStatus represents the state of a billing subscription.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
	SubStatusExpired  SubscriptionStatus = "expired"
)

// CampaignStatus tracks the lifecycle of a bulk-messaging campaign.
type CampaignStatus string

const (
	CampaignStatusDraft      CampaignStatus = "draft"
	CampaignStatusDispatched CampaignStatus = "dispatched"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusFailed     CampaignStatus = "failed"
)

// SendStatus enumerates valid states for a single outbound message attempt.
// These values MUST match the CHECK constraint in the message_log table.
type SendStatus string

const (
	SendStatusSent    SendStatus = "sent"
	SendStatusFailed  SendStatus = "failed"
	SendStatusSkipped SendStatus = "skipped"
)

// MediaType identifies the payload kind for SendMedia gateway calls.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaDocument MediaType = "document"
	MediaAudio    MediaType = "audio"
)

// SweepType identifies a scheduled batch job kind.
type SweepType string

const (
	SweepBirthday    SweepType = "birthday"
	SweepReturnVisit SweepType = "return_visit"
	SweepWebhook     SweepType = "webhook_reconcile"
	SweepQuotaPurge  SweepType = "quota_purge"
)
