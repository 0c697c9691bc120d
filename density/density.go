// Package density turns an area record into density metrics and a target density from
// which the number of homes the area could additionally hold is estimated.
//
// Areas are kept in square metres and converted to hectares only here, at the
// presentation boundary.
package density

import (
	"fmt"
	"math"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/homesgap/density/model"
)

const (
	highDetachedFraction = 0.4
	lowDetachedFraction  = 0.1
	sparseCoverage       = 0.2

	highDetachedMultiplier = 1.5
	lowDetachedMultiplier  = 1.1
	mixedStockMultiplier   = 1.25
	sparseMultiplier       = 1.4
)

// BandMultiplier is the uplift for the dwelling mix: mostly detached/semi-detached stock
// (fraction > 0.4) gets 1.5, mostly terraced or flatted stock (< 0.1) gets 1.1 and
// anything in between 1.25. Both comparisons are strict.
func BandMultiplier(detachedFraction float64) float64 {
	switch {
	case detachedFraction > highDetachedFraction:
		return highDetachedMultiplier
	case detachedFraction < lowDetachedFraction:
		return lowDetachedMultiplier
	default:
		return mixedStockMultiplier
	}
}

// CoverageMultiplier is 1.4 for land that is sparsely built on (coverage fraction < 0.2)
// and 1 otherwise.
func CoverageMultiplier(coverageFraction float64) float64 {
	if coverageFraction < sparseCoverage {
		return sparseMultiplier
	}
	return 1
}

func requireDwellings(r model.AreaDensityRecord) error {
	if r.Dwellings.TotalDwellings == 0 {
		return &model.DivisionPreconditionError{Code: r.Identity.Code, Quantity: "total dwellings"}
	}
	return nil
}

func requireUsableArea(r model.AreaDensityRecord) error {
	if r.UsableArea == 0 {
		return &model.DivisionPreconditionError{Code: r.Identity.Code, Quantity: "usable area"}
	}
	return nil
}

func requireAll(r model.AreaDensityRecord) error {
	if err := requireDwellings(r); err != nil {
		return err
	}
	return requireUsableArea(r)
}

// ExistingDensity is dwellings per hectare of usable area.
func ExistingDensity(r model.AreaDensityRecord) (float64, error) {
	if err := requireAll(r); err != nil {
		return 0, err
	}
	return float64(r.Dwellings.TotalDwellings) / r.UsableHectares(), nil
}

// DetachedFraction is the share of detached and semi-detached dwellings.
func DetachedFraction(r model.AreaDensityRecord) (float64, error) {
	if err := requireDwellings(r); err != nil {
		return 0, err
	}
	return float64(r.Dwellings.DetachedOrSemi) / float64(r.Dwellings.TotalDwellings), nil
}

// CoverageFraction is the building footprint area over the usable area.
func CoverageFraction(r model.AreaDensityRecord) (float64, error) {
	if err := requireUsableArea(r); err != nil {
		return 0, err
	}
	return r.BuildingCoverageArea / r.UsableArea, nil
}

// TargetDensity is the modelled achievable density in dwellings per hectare.
func TargetDensity(r model.AreaDensityRecord) (float64, error) {
	existing, err := ExistingDensity(r)
	if err != nil {
		return 0, err
	}
	detached, err := DetachedFraction(r)
	if err != nil {
		return 0, err
	}
	coverage, err := CoverageFraction(r)
	if err != nil {
		return 0, err
	}
	return existing * BandMultiplier(detached) * CoverageMultiplier(coverage), nil
}

// NewHomesEstimate is how many dwellings the usable area holds at the target density on
// top of the current ones. Negative when the area is already denser than its target.
func NewHomesEstimate(r model.AreaDensityRecord) (float64, error) {
	target, err := TargetDensity(r)
	if err != nil {
		return 0, err
	}
	return newHomes(target, r.UsableHectares(), r.Dwellings.TotalDwellings), nil
}

func newHomes(target, hectares float64, dwellings int) float64 {
	return target*hectares - float64(dwellings)
}

// RoundHomes rounds an estimate the way it is displayed, half to even.
func RoundHomes(estimate float64) int {
	return int(math.RoundToEven(estimate))
}

// Metrics is the display view of a record. It is derived on demand and never stored.
type Metrics struct {
	AreaHectares            float64
	BuildingCoveragePercent float64
	Dwellings               int
	DetachedOrSemiPercent   float64
	PopulationDensity       float64
	Occupation              float64
	DwellingDensity         float64
	TargetDensity           float64
	NewHomes                float64
}

// DerivedMetrics computes the display metrics of a record.
func DerivedMetrics(r model.AreaDensityRecord) (Metrics, error) {
	if err := requireAll(r); err != nil {
		return Metrics{}, err
	}
	hectares := r.UsableHectares()
	dwellings := float64(r.Dwellings.TotalDwellings)
	target, err := TargetDensity(r)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		AreaHectares:            hectares,
		BuildingCoveragePercent: r.BuildingCoverageArea / r.UsableArea * 100,
		Dwellings:               r.Dwellings.TotalDwellings,
		DetachedOrSemiPercent:   float64(r.Dwellings.DetachedOrSemi) / dwellings * 100,
		PopulationDensity:       float64(r.Population) / hectares,
		Occupation:              float64(r.Population) / dwellings,
		DwellingDensity:         dwellings / hectares,
		TargetDensity:           target,
		NewHomes:                newHomes(target, hectares, r.Dwellings.TotalDwellings),
	}, nil
}

// Display property keys, in display order.
const (
	KeyArea                  = "area"
	KeyBuildingCoverage      = "building_coverage"
	KeyDwellings             = "dwellings"
	KeyDetachedOrSemiPercent = "detached_or_semi_percent"
	KeyPopulationDensity     = "population_density"
	KeyOccupation            = "occupation"
	KeyDwellingDensity       = "dwelling_density"
	KeyTargetDensity         = "target_density"
	KeyNewHomes              = "new_homes"
)

// Properties formats the metrics for display: two decimals for areas, percentages and
// rates, a whole number of new homes.
func (m Metrics) Properties() *orderedmap.OrderedMap[string, any] {
	props := orderedmap.New[string, any]()
	props.Set(KeyArea, fmt.Sprintf("%.2f ha", m.AreaHectares))
	props.Set(KeyBuildingCoverage, fmt.Sprintf("%.2f%%", m.BuildingCoveragePercent))
	props.Set(KeyDwellings, m.Dwellings)
	props.Set(KeyDetachedOrSemiPercent, fmt.Sprintf("%.2f%%", m.DetachedOrSemiPercent))
	props.Set(KeyPopulationDensity, fmt.Sprintf("%.2f people / hectare", m.PopulationDensity))
	props.Set(KeyOccupation, fmt.Sprintf("%.2f people / dwelling", m.Occupation))
	props.Set(KeyDwellingDensity, fmt.Sprintf("%.2f dwellings / hectare", m.DwellingDensity))
	props.Set(KeyTargetDensity, fmt.Sprintf("%.2f dwellings / hectare", m.TargetDensity))
	props.Set(KeyNewHomes, fmt.Sprintf("%d new homes", RoundHomes(m.NewHomes)))
	return props
}
