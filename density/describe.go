package density

import (
	"fmt"
	"io"

	"github.com/homesgap/density/model"
)

// Describe writes a plain text summary of an area, one metric per line.
func Describe(w io.Writer, r model.AreaDensityRecord) error {
	m, err := DerivedMetrics(r)
	if err != nil {
		return err
	}
	lines := []string{
		fmt.Sprintf("MSOA: %s %s", r.Identity.Code, r.Identity.Name),
		fmt.Sprintf("Area: %.2f ha", m.AreaHectares),
		fmt.Sprintf("Building Coverage: %.2f%%", m.BuildingCoveragePercent),
		fmt.Sprintf("Dwellings: %d, of which detached and semi-detached houses: %d (%.2f%%)",
			r.Dwellings.TotalDwellings, r.Dwellings.DetachedOrSemi, m.DetachedOrSemiPercent),
		fmt.Sprintf("Population Density: %.2f people / hectare", m.PopulationDensity),
		fmt.Sprintf("Occupation: %.2f people / dwelling", m.Occupation),
		fmt.Sprintf("Dwelling Density: %.2f dwellings / hectare", m.DwellingDensity),
		fmt.Sprintf("Target Density: %.2f dwellings / hectare", m.TargetDensity),
		fmt.Sprintf("New Homes: %d", RoundHomes(m.NewHomes)),
	}
	for _, line := range lines {
		if _, err = fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
