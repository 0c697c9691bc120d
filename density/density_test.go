package density

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesgap/density/mapslicehelp"
	"github.com/homesgap/density/model"
)

func record(usable, coverage float64, total, detached, population int) model.AreaDensityRecord {
	return model.AreaDensityRecord{
		Identity:             model.AreaIdentity{Code: "E02003491", Name: "Brighton and Hove 001"},
		UsableArea:           usable,
		BuildingCoverageArea: coverage,
		Dwellings:            model.DwellingInfo{TotalDwellings: total, DetachedOrSemi: detached},
		Population:           population,
	}
}

func TestBandMultiplier(t *testing.T) {
	var tests = []struct {
		fraction   float64
		multiplier float64
	}{
		0: {fraction: 0.5, multiplier: 1.5},
		1: {fraction: 0.4000001, multiplier: 1.5},
		2: {fraction: 0.4, multiplier: 1.25},
		3: {fraction: 0.25, multiplier: 1.25},
		4: {fraction: 0.1, multiplier: 1.25},
		5: {fraction: 0.0999999, multiplier: 1.1},
		6: {fraction: 0, multiplier: 1.1},
		7: {fraction: 1, multiplier: 1.5},
	}
	for k, test := range tests {
		if got := BandMultiplier(test.fraction); got != test.multiplier {
			t.Errorf("test: %d, expected: %f \ngot: %f", k, test.multiplier, got)
		}
	}
}

func TestCoverageMultiplier(t *testing.T) {
	assert.Equal(t, 1.4, CoverageMultiplier(0.1999999))
	assert.Equal(t, 1.4, CoverageMultiplier(0))
	assert.Equal(t, 1., CoverageMultiplier(0.2))
	assert.Equal(t, 1., CoverageMultiplier(1))
}

func TestTargetDensityBandBoundaries(t *testing.T) {
	// 10 ha, 100 dwellings: existing density 10 dwellings/ha
	const usable = 100_000.
	var tests = []struct {
		name     string
		detached int
		coverage float64
		target   float64
	}{
		{name: "detached exactly 0.4", detached: 40, coverage: 50_000, target: 12.5},
		{name: "detached above 0.4", detached: 41, coverage: 50_000, target: 15},
		{name: "detached exactly 0.1", detached: 10, coverage: 50_000, target: 12.5},
		{name: "detached below 0.1", detached: 9, coverage: 50_000, target: 11},
		{name: "coverage exactly 0.2", detached: 50, coverage: 20_000, target: 15},
		{name: "coverage below 0.2", detached: 50, coverage: 19_999, target: 21},
		{name: "sparse and terraced", detached: 0, coverage: 0, target: 15.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TargetDensity(record(usable, tt.coverage, 100, tt.detached, 250))
			require.NoError(t, err)
			assert.InDelta(t, tt.target, got, 1e-9)
		})
	}
}

func TestTargetDensityScaleInvariantRatios(t *testing.T) {
	// scaling all areas together keeps both fractions, so only the existing density changes
	base, err := TargetDensity(record(100_000, 30_000, 100, 30, 250))
	require.NoError(t, err)
	scaled, err := TargetDensity(record(400_000, 120_000, 400, 120, 1000))
	require.NoError(t, err)
	assert.InDelta(t, base, scaled, 1e-9)
}

func TestUnitSquareEndToEnd(t *testing.T) {
	r := record(1, 1, 100, 50, 200)

	existing, err := ExistingDensity(r)
	require.NoError(t, err)
	assert.InEpsilon(t, 1_000_000, existing, 1e-12)

	// half detached or semi is above 0.4, full coverage gets no extra multiplier
	target, err := TargetDensity(r)
	require.NoError(t, err)
	assert.InEpsilon(t, 1_500_000, target, 1e-12)

	estimate, err := NewHomesEstimate(r)
	require.NoError(t, err)
	assert.InDelta(t, 50, estimate, 1e-6)
	assert.Equal(t, 50, RoundHomes(estimate))

	// 30% detached or semi falls in the middle band
	r = record(1, 1, 100, 30, 200)
	target, err = TargetDensity(r)
	require.NoError(t, err)
	assert.InEpsilon(t, 1_250_000, target, 1e-12)
	estimate, err = NewHomesEstimate(r)
	require.NoError(t, err)
	assert.Equal(t, 25, RoundHomes(estimate))
}

func TestNewHomesNotClamped(t *testing.T) {
	// 5 ha at a target of 10 dwellings/ha holds 50, the area already has 80
	assert.InDelta(t, -30, newHomes(10, 5, 80), 1e-9)
	assert.Equal(t, -30, RoundHomes(newHomes(10, 5, 80)))
}

func TestNewHomesEstimate(t *testing.T) {
	var tests = []struct {
		name     string
		record   model.AreaDensityRecord
		expected float64
	}{
		// the estimate is the current stock times the combined uplift minus one
		{name: "terraced", record: record(10_000, 5_000, 100, 5, 150), expected: 10},
		{name: "mixed", record: record(10_000, 5_000, 100, 20, 150), expected: 25},
		{name: "suburban sparse", record: record(10_000, 1_000, 100, 50, 150), expected: 110},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewHomesEstimate(tt.record)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestRoundHomes(t *testing.T) {
	assert.Equal(t, 2, RoundHomes(2.5))
	assert.Equal(t, 4, RoundHomes(3.5))
	assert.Equal(t, -12, RoundHomes(-12.4))
	assert.Equal(t, 0, RoundHomes(-0.2))
}

func TestPreconditions(t *testing.T) {
	var tests = []struct {
		name     string
		record   model.AreaDensityRecord
		quantity string
	}{
		{name: "no dwellings", record: record(10_000, 1_000, 0, 0, 10), quantity: "total dwellings"},
		{name: "no usable area", record: record(0, 0, 10, 1, 10), quantity: "usable area"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var precondition *model.DivisionPreconditionError

			_, err := TargetDensity(tt.record)
			require.ErrorAs(t, err, &precondition)
			assert.Equal(t, tt.quantity, precondition.Quantity)

			_, err = NewHomesEstimate(tt.record)
			require.ErrorAs(t, err, &precondition)

			_, err = DerivedMetrics(tt.record)
			require.ErrorAs(t, err, &precondition)
		})
	}
}

func TestDerivedMetrics(t *testing.T) {
	// 60.13 ha, 29.09% coverage, 4,470 dwellings of which 220 detached or semi
	r := record(601_300, 174_918.17, 4470, 220, 8270)
	m, err := DerivedMetrics(r)
	require.NoError(t, err)

	assert.InDelta(t, 60.13, m.AreaHectares, 1e-9)
	assert.InDelta(t, 29.09, m.BuildingCoveragePercent, 1e-3)
	assert.Equal(t, 4470, m.Dwellings)
	assert.InDelta(t, 4.92, m.DetachedOrSemiPercent, 1e-2)
	assert.InDelta(t, 137.53, m.PopulationDensity, 1e-2)
	assert.InDelta(t, 1.85, m.Occupation, 1e-2)
	assert.InDelta(t, 74.34, m.DwellingDensity, 1e-2)
	// 4.92% detached: terraced band, 29% coverage: not sparse
	assert.InDelta(t, m.DwellingDensity*1.1, m.TargetDensity, 1e-9)

	estimate, err := NewHomesEstimate(r)
	require.NoError(t, err)
	assert.InDelta(t, estimate, m.NewHomes, 1e-9)
	assert.InDelta(t, 447, m.NewHomes, 1e-6)
}

func TestPropertiesFormatting(t *testing.T) {
	m, err := DerivedMetrics(record(1, 1, 100, 50, 200))
	require.NoError(t, err)
	props := m.Properties()

	assert.Equal(t, []string{
		KeyArea, KeyBuildingCoverage, KeyDwellings, KeyDetachedOrSemiPercent, KeyPopulationDensity,
		KeyOccupation, KeyDwellingDensity, KeyTargetDensity, KeyNewHomes,
	}, mapslicehelp.OrderedMapKeys(props))

	expected := map[string]any{
		KeyArea:                  "0.00 ha",
		KeyBuildingCoverage:      "100.00%",
		KeyDwellings:             100,
		KeyDetachedOrSemiPercent: "50.00%",
		KeyPopulationDensity:     "2000000.00 people / hectare",
		KeyOccupation:            "2.00 people / dwelling",
		KeyDwellingDensity:       "1000000.00 dwellings / hectare",
		KeyTargetDensity:         "1500000.00 dwellings / hectare",
		KeyNewHomes:              "50 new homes",
	}
	for key, want := range expected {
		got, ok := props.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestSummarize(t *testing.T) {
	a := record(10_000, 5_000, 100, 5, 150) // +10
	a.Identity = model.AreaIdentity{Code: "E02000001", Name: "A"}
	b := record(10_000, 1_000, 100, 50, 150) // 100*1.5*1.4 - 100 = +110
	b.Identity = model.AreaIdentity{Code: "E02000002", Name: "B"}
	c := record(0, 0, 100, 5, 150)
	c.Identity = model.AreaIdentity{Code: "E02000003", Name: "C"}

	summary := Summarize([]model.AreaDensityRecord{a, b, c})
	assert.InDelta(t, 120, summary.TotalNewHomes, 1e-9)
	require.Len(t, summary.Ranked, 2)
	assert.Equal(t, "E02000002", summary.Ranked[0].Identity.Code)
	assert.Equal(t, "E02000001", summary.Ranked[1].Identity.Code)
	assert.Equal(t, []model.AreaIdentity{c.Identity}, summary.Unavailable)
}

func TestDescribe(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Describe(&sb, record(20_000, 5_000, 100, 20, 150)))
	assert.Equal(t, `MSOA: E02003491 Brighton and Hove 001
Area: 2.00 ha
Building Coverage: 25.00%
Dwellings: 100, of which detached and semi-detached houses: 20 (20.00%)
Population Density: 75.00 people / hectare
Occupation: 1.50 people / dwelling
Dwelling Density: 50.00 dwellings / hectare
Target Density: 62.50 dwellings / hectare
New Homes: 25
`, sb.String())

	var missing strings.Builder
	err := Describe(&missing, record(20_000, 5_000, 0, 0, 150))
	var precondition *model.DivisionPreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Empty(t, missing.String())
}
