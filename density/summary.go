package density

import (
	"github.com/homesgap/density/mapslicehelp"
	"github.com/homesgap/density/model"
)

// RankedArea is one line of a batch summary.
type RankedArea struct {
	Identity model.AreaIdentity
	NewHomes float64
}

// Summary aggregates the new homes estimates of a batch.
type Summary struct {
	TotalNewHomes float64
	// Ranked is ordered by estimate, largest first
	Ranked []RankedArea
	// Unavailable lists the areas for which no model could be computed
	Unavailable []model.AreaIdentity
}

// Summarize sums the unrounded estimates. Areas above their target contribute negatively.
func Summarize(records []model.AreaDensityRecord) Summary {
	var summary Summary
	estimates := make(map[string]float64, len(records))
	identities := make(map[string]model.AreaIdentity, len(records))
	for _, r := range records {
		estimate, err := NewHomesEstimate(r)
		if err != nil {
			summary.Unavailable = append(summary.Unavailable, r.Identity)
			continue
		}
		summary.TotalNewHomes += estimate
		estimates[r.Identity.Code] = estimate
		identities[r.Identity.Code] = r.Identity
	}
	for _, code := range mapslicehelp.RankByValue(estimates, true) {
		summary.Ranked = append(summary.Ranked, RankedArea{Identity: identities[code], NewHomes: estimates[code]})
	}
	return summary
}
