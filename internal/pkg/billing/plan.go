package billing

import (
	"strings"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/entitlements"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/env"
)

// PricingPlan is one entry of the public plan catalogue.
type PricingPlan struct {
	Plan        entitlements.Plan `json:"plan"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Benefits    []string          `json:"benefits"`
	Limitations []string          `json:"limitations"`
	Prices      struct {
		Monthly int `json:"monthly"`
		Yearly  int `json:"yearly"`
	} `json:"prices"`
	StripeIDs struct {
		Monthly string `json:"monthly,omitempty"`
		Yearly  string `json:"yearly,omitempty"`
	} `json:"stripeIds"`
}

// PricingData returns the Free and Pro plans; Pro price ids come from
// STRIPE_PRO_MONTHLY_PLAN_ID and STRIPE_PRO_YEARLY_PLAN_ID.
func PricingData() []PricingPlan {
	free := PricingPlan{
		Plan:        entitlements.PlanFree,
		Title:       "Free",
		Description: "Get started for free",
		Benefits: []string{
			"Browse all connected repos",
			"Visual JSON & YAML editor",
			"Commit to public repos",
			"10 commits per 30 days",
		},
		Limitations: []string{
			"Cannot commit to private repos",
			"Limited to 10 commits / 30 days",
		},
	}

	pro := PricingPlan{
		Plan:        entitlements.PlanPro,
		Title:       "Pro",
		Description: "Unlimited access",
		Benefits: []string{
			"Everything in Free",
			"Commit to private repos",
			"Unlimited commits",
			"Priority support",
		},
		Limitations: []string{},
	}
	pro.Prices.Monthly = 10
	pro.Prices.Yearly = 96
	pro.StripeIDs.Monthly = env.GetEnv("STRIPE_PRO_MONTHLY_PLAN_ID", "")
	pro.StripeIDs.Yearly = env.GetEnv("STRIPE_PRO_YEARLY_PLAN_ID", "")

	return []PricingPlan{free, pro}
}

// ResolvePlan finds the catalogue entry and billing interval for a price id.
// Paid users with an unknown (legacy) price are treated as Pro.
func ResolvePlan(catalogue []PricingPlan, priceID string, isPaid bool) (PricingPlan, string) {
	if len(catalogue) == 0 {
		return PricingPlan{Plan: entitlements.PlanFree}, ""
	}
	if !isPaid {
		return catalogue[0], ""
	}
	for _, p := range catalogue {
		if priceID == "" {
			break
		}
		if p.StripeIDs.Monthly == priceID {
			return p, "month"
		}
		if p.StripeIDs.Yearly == priceID {
			return p, "year"
		}
	}
	for _, p := range catalogue {
		if p.Plan == entitlements.PlanPro {
			return p, "unknown"
		}
	}
	return catalogue[0], ""
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case "month", "year":
		return i
	default:
		return "unknown"
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}
