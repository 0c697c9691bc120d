// Package area assembles the density record of one statistical area from its sources:
// boundary, exclusion layers, buildings, census counts and name.
package area

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-spatial/geom"

	"github.com/homesgap/density/geometry"
	"github.com/homesgap/density/model"
	"github.com/homesgap/density/sieve"
)

// BoundarySource provides the boundary polygon of an area in the planar CRS.
type BoundarySource interface {
	FetchBoundary(ctx context.Context, code string) (geom.Polygon, error)
}

// ExclusionSource provides the exclusion layers, in subtraction order, around a bbox.
type ExclusionSource interface {
	FetchExclusionLayers(ctx context.Context, bbox geom.Extent) ([]geometry.ExclusionLayer, error)
}

// BuildingSource provides the building footprints around a bbox.
type BuildingSource interface {
	FetchBuildings(ctx context.Context, bbox geom.Extent) ([]geom.Polygon, error)
}

// CountSource provides the census counts of an area.
type CountSource interface {
	FetchDwellingCounts(ctx context.Context, code string) (model.DwellingInfo, error)
	FetchPopulation(ctx context.Context, code string) (int, error)
}

// NameSource provides the display name of an area.
type NameSource interface {
	FetchName(ctx context.Context, code string) (string, error)
}

// Sources bundles everything a Builder reads from.
type Sources struct {
	Boundaries BoundarySource
	Exclusions ExclusionSource
	Buildings  BuildingSource
	Counts     CountSource
	Names      NameSource
}

// Builder builds area records. Builders hold no state between builds and can be shared
// between goroutines as long as the sources can.
type Builder struct {
	Sources
	// SieveResolution drops parts and holes of the usable polygon not larger than its
	// square. Zero keeps everything with an area.
	SieveResolution float64
}

// NewBuilder returns a builder over the given sources.
func NewBuilder(sources Sources, sieveResolution float64) *Builder {
	return &Builder{Sources: sources, SieveResolution: sieveResolution}
}

// Build computes the record of one area. Any missing source data fails the whole build,
// there are no partial records.
func (b *Builder) Build(ctx context.Context, code string) (model.AreaDensityRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.AreaDensityRecord{}, err
	}

	name, err := b.Names.FetchName(ctx, code)
	if err != nil {
		return model.AreaDensityRecord{}, fmt.Errorf("could not fetch name of %s: %w", code, err)
	}
	boundary, err := b.Boundaries.FetchBoundary(ctx, code)
	if err != nil {
		return model.AreaDensityRecord{}, fmt.Errorf("could not fetch boundary of %s: %w", code, err)
	}
	if len(boundary) == 0 {
		return model.AreaDensityRecord{}, &model.MissingDataError{Source: "boundary", Code: code}
	}
	if err = geometry.Validate(boundary); err != nil {
		return model.AreaDensityRecord{}, withCode(err, code)
	}
	bbox, err := geometry.BoundingBox(boundary)
	if err != nil {
		return model.AreaDensityRecord{}, fmt.Errorf("could not determine extent of %s: %w", code, err)
	}

	layers, err := b.Exclusions.FetchExclusionLayers(ctx, bbox)
	if err != nil {
		return model.AreaDensityRecord{}, fmt.Errorf("could not fetch exclusion layers for %s: %w", code, err)
	}
	usable, err := geometry.UsableArea(boundary, layers, bbox)
	if err != nil {
		return model.AreaDensityRecord{}, withCode(err, code)
	}
	if b.SieveResolution > 0 {
		usable = sieve.Sieve(usable, b.SieveResolution)
	}

	buildings, err := b.Buildings.FetchBuildings(ctx, bbox)
	if err != nil {
		return model.AreaDensityRecord{}, fmt.Errorf("could not fetch buildings for %s: %w", code, err)
	}
	coverage, err := geometry.CoverageArea(buildings, usable)
	if err != nil {
		return model.AreaDensityRecord{}, withCode(err, code)
	}

	dwellings, err := b.Counts.FetchDwellingCounts(ctx, code)
	if err != nil {
		return model.AreaDensityRecord{}, fmt.Errorf("could not fetch dwelling counts of %s: %w", code, err)
	}
	if !dwellings.Valid() {
		return model.AreaDensityRecord{}, fmt.Errorf("inconsistent dwelling counts for %s: %d detached or semi of %d",
			code, dwellings.DetachedOrSemi, dwellings.TotalDwellings)
	}
	population, err := b.Counts.FetchPopulation(ctx, code)
	if err != nil {
		return model.AreaDensityRecord{}, fmt.Errorf("could not fetch population of %s: %w", code, err)
	}

	return model.AreaDensityRecord{
		Identity:             model.AreaIdentity{Code: code, Name: name},
		Usable:               usable,
		UsableArea:           geometry.Area(usable),
		BuildingCoverageArea: coverage,
		Dwellings:            dwellings,
		Population:           population,
	}, nil
}

// withCode attributes an invalid geometry to the area being built.
func withCode(err error, code string) error {
	var invalid *model.InvalidGeometryError
	if errors.As(err, &invalid) && invalid.Code == "" {
		invalid.Code = code
	}
	return err
}
