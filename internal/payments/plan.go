package payments

import (
	"fmt"
	"strings"
)

type Plan struct {
	Name         string `json:"name"`
	Credits      int64  `json:"credits"`
	AmountMinor  int64  `json:"amount"`
	Currency     string `json:"currency"`
	Subscription bool   `json:"subscription"`
}

// ProPlan is the subscription sold by default: 5000 XOF for 50 credits.
var ProPlan = Plan{
	Name:         "Mode Pro",
	Credits:      50,
	AmountMinor:  5000,
	Currency:     "XOF",
	Subscription: true,
}

var catalog = map[string]Plan{
	normalizePlanName(ProPlan.Name): ProPlan,
	"pro_plan":                      ProPlan,
}

// PlanByName looks a plan up by display name or slug, case-insensitively.
// An empty name resolves to ProPlan.
func PlanByName(name string) (Plan, bool) {
	if strings.TrimSpace(name) == "" {
		return ProPlan, true
	}
	p, ok := catalog[normalizePlanName(name)]
	return p, ok
}

func normalizePlanName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CoveredBy checks that a provider-reported payment pays for the plan. An
// empty currency is taken to be the plan's.
func (p Plan) CoveredBy(amountMinor int64, currency string) error {
	if currency != "" && !strings.EqualFold(currency, p.Currency) {
		return fmt.Errorf("paid in %s, plan %q is priced in %s", currency, p.Name, p.Currency)
	}
	if amountMinor < p.AmountMinor {
		return fmt.Errorf("paid amount %d below plan price %d", amountMinor, p.AmountMinor)
	}
	return nil
}
