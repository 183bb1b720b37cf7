package models

// PricingTier identifies one of the five plan levels.
type PricingTier string

const (
	TierFree     PricingTier = "free"
	TierStarter  PricingTier = "starter"
	TierStandard PricingTier = "standard"
	TierBusiness PricingTier = "business"
	TierPremium  PricingTier = "premium"
)

// PricingPlan is static, read-only plan configuration. A limit of -1 means
// unlimited. StripePriceID is filled in from config at startup.
type PricingPlan struct {
	ID            PricingTier `json:"id"`
	Name          string      `json:"name"`
	Price         int64       `json:"price"`
	Currency      string      `json:"currency"`
	Features      []string    `json:"features"`
	MaxUsers      int         `json:"max_users"`
	MaxProjects   int         `json:"max_projects"`
	StripePriceID string      `json:"stripe_price_id,omitempty"`
}

var pricingPlans = []PricingPlan{
	{
		ID:       TierFree,
		Name:     "Free (Trial)",
		Price:    0,
		Currency: "USD",
		Features: []string{
			"Up to 3 users",
			"Basic features",
			"1 project",
			"Email support",
			"14-day trial",
		},
		MaxUsers:    3,
		MaxProjects: 1,
	},
	{
		ID:       TierStarter,
		Name:     "Starter",
		Price:    5,
		Currency: "USD",
		Features: []string{
			"Up to 5 users",
			"All basic features",
			"5 projects",
			"Priority email support",
			"Advanced analytics",
		},
		MaxUsers:    5,
		MaxProjects: 5,
	},
	{
		ID:       TierStandard,
		Name:     "Standard",
		Price:    10,
		Currency: "USD",
		Features: []string{
			"Up to 15 users",
			"All starter features",
			"Unlimited projects",
			"Priority support",
			"Custom integrations",
			"Advanced reporting",
		},
		MaxUsers:    15,
		MaxProjects: -1,
	},
	{
		ID:       TierBusiness,
		Name:     "Business",
		Price:    25,
		Currency: "USD",
		Features: []string{
			"Up to 50 users",
			"All standard features",
			"Unlimited projects",
			"Priority phone & email support",
			"Advanced security features",
			"Custom integrations",
			"Dedicated account manager",
		},
		MaxUsers:    50,
		MaxProjects: -1,
	},
	{
		ID:       TierPremium,
		Name:     "Premium",
		Price:    50,
		Currency: "USD",
		Features: []string{
			"Unlimited users",
			"All business features",
			"Unlimited projects",
			"24/7 phone & email support",
			"Dedicated account manager",
			"Custom development",
			"SLA guarantee",
			"Advanced security & compliance",
			"White-label options",
		},
		MaxUsers:    -1,
		MaxProjects: -1,
	},
}

// IsValidTier reports whether tier names a known pricing plan.
func IsValidTier(tier PricingTier) bool {
	for _, plan := range pricingPlans {
		if plan.ID == tier {
			return true
		}
	}
	return false
}

// GetPricingPlan returns the plan for a tier, and whether it exists.
func GetPricingPlan(tier PricingTier) (PricingPlan, bool) {
	for _, plan := range pricingPlans {
		if plan.ID == tier {
			return plan, true
		}
	}
	return PricingPlan{}, false
}

// AllPricingPlans returns the plans ordered from cheapest to most expensive.
// The returned slice is a copy; callers may attach price ids to it.
func AllPricingPlans() []PricingPlan {
	plans := make([]PricingPlan, len(pricingPlans))
	copy(plans, pricingPlans)
	return plans
}
