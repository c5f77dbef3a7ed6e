package entitlement

import "github.com/newslens-app/newslens/internal/model"

// Unlimited is the audit-limit sentinel for plans without a monthly cap.
const Unlimited = -1

// PlanQuota defines the monthly audit allowance for a plan.
type PlanQuota struct {
	AuditsPerMonth int
	Unlimited      bool
}

// planQuotas maps plans to their monthly limits. Unknown plans fall back to
// free, never to a larger allowance.
var planQuotas = map[model.Plan]PlanQuota{
	model.PlanFree:  {AuditsPerMonth: 5},
	model.PlanBasic: {AuditsPerMonth: 50},
	model.PlanPro:   {Unlimited: true},
	model.PlanTeam:  {Unlimited: true},
}

// QuotaFor returns the quota for a plan, defaulting to the free tier.
func QuotaFor(plan model.Plan) PlanQuota {
	if q, ok := planQuotas[plan]; ok {
		return q
	}
	return planQuotas[model.PlanFree]
}

// AuditsLimit returns the numeric limit for a plan, Unlimited for uncapped plans.
func AuditsLimit(plan model.Plan) int {
	q := QuotaFor(plan)
	if q.Unlimited {
		return Unlimited
	}
	return q.AuditsPerMonth
}

// paidPlans are the plans that count as Pro when the subscription is active.
// One canonical rule, applied uniformly.
var paidPlans = map[model.Plan]bool{
	model.PlanBasic: true,
	model.PlanPro:   true,
	model.PlanTeam:  true,
}

// IsPaidPlan reports whether plan is one of the purchasable tiers.
func IsPaidPlan(plan model.Plan) bool {
	return paidPlans[plan]
}
