package catalog

import "agendly/internal/types"

// Well-known plan IDs. FreePlanID is the structural floor of the entitlement
// model: expiry fallback and unresolvable-plan fallback both land here, and
// the free plan itself never expires (DurationDays = 0).
const (
	FreePlanID    = "plan_free"
	BasicPlanID   = "plan_basic"
	ProPlanID     = "plan_pro"
	PremiumPlanID = "plan_premium"

	// DeprecatedPlanID is the retired launch-era trial plan. SyncPlans
	// removes it from the catalog once no tenant is assigned to it.
	DeprecatedPlanID = "plan_trial_legacy"
)

// referencePlans is the authoritative catalog definition. SyncPlans merges
// these into the plans table; the table is the read path, this slice is the
// write path's single source of truth.
//
//	| Plan    | Price    | Days | Highlights                               |
//	|---------|----------|------|------------------------------------------|
//	| Free    | R$ 0     | -    | manager notifications only               |
//	| Basic   | R$ 49    | 30   | + appointment reminders, feedback        |
//	| Pro     | R$ 99    | 30   | + bulk messaging, birthdays, AI replies  |
//	| Premium | R$ 179   | 30   | everything                               |
var referencePlans = []types.Plan{
	{
		ID:           FreePlanID,
		Name:         "Gratuito",
		Description:  "Agenda básica com notificações para o gestor",
		PriceCents:   0,
		DurationDays: 0,
		Features: []types.FeatureFlag{
			types.FeatureManagerNotification,
		},
		IsFeatured: false,
		Status:     types.PlanStatusActive,
	},
	{
		ID:           BasicPlanID,
		Name:         "Básico",
		Description:  "Lembretes automáticos de agendamento",
		PriceCents:   4900,
		DurationDays: 30,
		Features: []types.FeatureFlag{
			types.FeatureReminder24h,
			types.FeatureReminder2h,
			types.FeaturePostVisitFeedback,
			types.FeatureManagerNotification,
		},
		IsFeatured: false,
		Status:     types.PlanStatusActive,
	},
	{
		ID:           ProPlanID,
		Name:         "Profissional",
		Description:  "Automação completa com IA e campanhas",
		PriceCents:   9900,
		DurationDays: 30,
		Features: []types.FeatureFlag{
			types.FeatureReminder24h,
			types.FeatureReminder2h,
			types.FeaturePostVisitFeedback,
			types.FeatureBirthdayReminder,
			types.FeatureBulkMessaging,
			types.FeatureAIAutoReply,
			types.FeatureManagerNotification,
		},
		IsFeatured: true,
		Status:     types.PlanStatusActive,
	},
	{
		ID:           PremiumPlanID,
		Name:         "Premium",
		Description:  "Tudo do Profissional mais atendimento avançado",
		PriceCents:   17900,
		DurationDays: 30,
		Features: []types.FeatureFlag{
			types.FeatureReminder24h,
			types.FeatureReminder2h,
			types.FeaturePostVisitFeedback,
			types.FeatureBirthdayReminder,
			types.FeatureBulkMessaging,
			types.FeatureAIAutoReply,
			types.FeatureEscalationToHuman,
			types.FeatureCallRejection,
			types.FeatureManagerNotification,
		},
		IsFeatured: false,
		Status:     types.PlanStatusActive,
	},
}

// freeReference is the compiled-in free plan, cached for the last-resort
// fallback path when even the free plan cannot be read from the catalog.
var freeReference = referencePlans[0]

// ReferencePlans returns a copy of the authoritative plan definitions so
// callers cannot mutate the package-level slice.
func ReferencePlans() []types.Plan {
	plans := make([]types.Plan, len(referencePlans))
	copy(plans, referencePlans)
	return plans
}

// FreePlan returns a copy of the compiled-in free plan definition.
func FreePlan() types.Plan {
	p := freeReference
	features := make([]types.FeatureFlag, len(p.Features))
	copy(features, p.Features)
	p.Features = features
	return p
}
