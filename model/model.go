// Package model holds the per-area types shared by the geometry engine, the density model
// and the record assembly.
package model

import (
	"github.com/go-spatial/geom"
)

// SquareMetresPerHectare converts the internal area unit to the presentation unit.
const SquareMetresPerHectare = 10_000

// AreaIdentity identifies a statistical area (MSOA).
type AreaIdentity struct {
	Code string `json:"msoa_code"`
	Name string `json:"msoa_name"`
}

// DwellingInfo holds the census dwelling counts for one area.
type DwellingInfo struct {
	TotalDwellings int `json:"total_dwellings"`
	DetachedOrSemi int `json:"detached_or_semi"`
}

// Valid reports whether the counts are consistent. It does not require TotalDwellings > 0,
// that is a precondition of the density model only.
func (d DwellingInfo) Valid() bool {
	return d.TotalDwellings >= 0 && d.DetachedOrSemi >= 0 && d.DetachedOrSemi <= d.TotalDwellings
}

// AreaDensityRecord is the unit of computation and of caching. Areas are in square metres
// of the planar CRS. A record is not modified after it has been built.
type AreaDensityRecord struct {
	Identity             AreaIdentity      `json:"identity"`
	Usable               geom.MultiPolygon `json:"-"`
	UsableArea           float64           `json:"urban_area"`
	BuildingCoverageArea float64           `json:"building_coverage_area"`
	Dwellings            DwellingInfo      `json:"dwelling_info"`
	Population           int               `json:"population"`
}

// UsableHectares is the usable area in hectares.
func (r AreaDensityRecord) UsableHectares() float64 {
	return r.UsableArea / SquareMetresPerHectare
}
