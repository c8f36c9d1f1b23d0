package quota

import (
	"github.com/teranos/linkpulse/pulse"
)

// Plan is the active subscription's permissions and limits.
type Plan struct {
	// Automations lists the kinds the plan unlocks.
	Automations []pulse.Kind `json:"automations"`
	// Daily holds the per-action daily limits. Zero allows none of that action.
	Daily pulse.Metrics `json:"daily"`
	// Monthly holds the credit allowance granted at the start of each month.
	Monthly pulse.Credits `json:"monthly"`
}

// Permits reports whether kind is part of the plan.
func (p Plan) Permits(kind pulse.Kind) bool {
	for _, k := range p.Automations {
		if k == kind {
			return true
		}
	}
	return false
}

// DefaultPlan matches the free tier.
func DefaultPlan() Plan {
	return Plan{
		Automations: []pulse.Kind{pulse.KindBulkEngagement, pulse.KindPeopleSearch, pulse.KindProfileImport},
		Daily: pulse.Metrics{
			Likes:       100,
			Comments:    30,
			Shares:      10,
			Follows:     50,
			Connections: 25,
		},
		Monthly: pulse.Credits{Import: 500, AI: 100},
	}
}
