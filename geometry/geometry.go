// Package geometry derives the usable residential polygon of an area and the building
// footprint area inside it. All coordinates are in one planar CRS (metres); nothing here
// reprojects.
package geometry

import (
	"errors"
	"fmt"

	"github.com/go-spatial/geom"
	sf "github.com/peterstace/simplefeatures/geom"

	"github.com/homesgap/density/geomhelp"
	"github.com/homesgap/density/mapslicehelp"
	"github.com/homesgap/density/model"
)

const wktErrorWidth = 120

// ExclusionLayerNames is the order in which exclusion layers are subtracted.
var ExclusionLayerNames = []string{"national_parks", "greenspace", "woodland"}

// ExclusionLayer is a named set of polygons (green space, woodland, parks) that is not
// residential land.
type ExclusionLayer struct {
	Name     string
	Polygons []geom.Polygon
}

// BoundingBox returns the extent of g.
func BoundingBox(g geom.Geometry) (geom.Extent, error) {
	ext, err := geom.NewExtentFromGeometry(g)
	if err != nil {
		return geom.Extent{}, err
	}
	return *ext, nil
}

// Overlaps reports whether two extents share at least one point. Touching counts.
func Overlaps(a, b geom.Extent) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

// Validate checks every ring of p for at least 3 distinct vertices and no self-intersections.
func Validate(p geom.Polygon) error {
	if len(p) == 0 {
		return &model.InvalidGeometryError{Reason: "empty polygon"}
	}
	for i, ring := range p {
		if geomhelp.DistinctVertices(ring) < 3 {
			return &model.InvalidGeometryError{
				Reason: fmt.Sprintf("ring %d has fewer than 3 distinct vertices", i),
				WKT:    geomhelp.WktMustEncode(p, wktErrorWidth),
			}
		}
		simple, err := isSimpleRing(ring)
		if err != nil {
			return &model.InvalidGeometryError{
				Reason: fmt.Sprintf("ring %d: %v", i, err),
				WKT:    geomhelp.WktMustEncode(p, wktErrorWidth),
			}
		}
		if !simple {
			return &model.InvalidGeometryError{
				Reason: fmt.Sprintf("ring %d is self-intersecting", i),
				WKT:    geomhelp.WktMustEncode(p, wktErrorWidth),
			}
		}
	}
	return nil
}

// isEmpty is true for a polygon without any vertices. Sources can yield these for features
// without geometry; they cover no land and are skipped.
func isEmpty(p geom.Polygon) bool {
	for _, ring := range p {
		if len(ring) > 0 {
			return false
		}
	}
	return true
}

// Area is the planar area of a multi polygon, holes excluded.
func Area(mp geom.MultiPolygon) float64 {
	return geomhelp.MultiPolygonArea(mp)
}

// UsableArea subtracts the exclusion layers, in the given order, from the boundary.
// Each layer is subtracted from what the previous layers left, so overlapping exclusions
// never remove the same land twice. Only exclusion polygons whose extent overlaps bbox are
// considered. The result may have several parts or none at all.
func UsableArea(boundary geom.Polygon, layers []ExclusionLayer, bbox geom.Extent) (geom.MultiPolygon, error) {
	if err := Validate(boundary); err != nil {
		return nil, err
	}
	acc := usableAccumulator{untouched: boundary}
	acc, err := mapslicehelp.Fold(layers, acc, func(acc usableAccumulator, layer ExclusionLayer) (usableAccumulator, error) {
		return acc.subtract(layer, bbox)
	})
	if err != nil {
		return nil, err
	}
	if acc.overlay == nil {
		return geom.MultiPolygon{boundary}, nil
	}
	return fromOverlay(*acc.overlay), nil
}

// usableAccumulator holds the boundary as long as nothing was subtracted from it, so that an
// area without exclusions keeps its exact input polygon.
type usableAccumulator struct {
	untouched geom.Polygon
	overlay   *sf.Geometry
}

func (acc usableAccumulator) subtract(layer ExclusionLayer, bbox geom.Extent) (usableAccumulator, error) {
	for _, exclusion := range layer.Polygons {
		if acc.overlay != nil && acc.overlay.IsEmpty() {
			return acc, nil
		}
		if isEmpty(exclusion) {
			continue
		}
		ext, err := BoundingBox(exclusion)
		if err != nil {
			return acc, fmt.Errorf("could not get extent of %s polygon: %w", layer.Name, err)
		}
		if !Overlaps(ext, bbox) {
			continue
		}
		if err := Validate(exclusion); err != nil {
			var invalid *model.InvalidGeometryError
			if errors.As(err, &invalid) {
				invalid.Reason = layer.Name + ": " + invalid.Reason
			}
			return acc, err
		}
		if acc.overlay == nil {
			g, err := toOverlay(acc.untouched)
			if err != nil {
				return acc, fmt.Errorf("could not convert boundary: %w", err)
			}
			acc.overlay = &g
		}
		excl, err := toOverlay(exclusion)
		if err != nil {
			return acc, fmt.Errorf("could not convert %s polygon: %w", layer.Name, err)
		}
		if !sf.Intersects(*acc.overlay, excl) {
			continue
		}
		diff, err := sf.Difference(*acc.overlay, excl)
		if err != nil {
			return acc, fmt.Errorf("could not subtract %s polygon: %w", layer.Name, err)
		}
		acc.overlay = &diff
	}
	return acc, nil
}

// CoverageArea sums the areas of the buildings that lie entirely within the usable polygon.
// Buildings straddling its edge do not count at all.
func CoverageArea(buildings []geom.Polygon, usable geom.MultiPolygon) (float64, error) {
	if len(usable) == 0 {
		return 0, nil
	}
	usableExt, err := BoundingBox(usable)
	if err != nil {
		return 0, err
	}
	parts := make([]geom.Polygon, len(usable))
	for i := range usable {
		parts[i] = usable[i]
	}
	usableOverlay, err := toOverlay(parts...)
	if err != nil {
		return 0, fmt.Errorf("could not convert usable polygon: %w", err)
	}

	total := .0
	for _, building := range buildings {
		if isEmpty(building) {
			continue
		}
		ext, err := BoundingBox(building)
		if err != nil {
			return 0, fmt.Errorf("could not get extent of building: %w", err)
		}
		if !Overlaps(ext, usableExt) {
			continue
		}
		if err := Validate(building); err != nil {
			return 0, err
		}
		b, err := toOverlay(building)
		if err != nil {
			return 0, fmt.Errorf("could not convert building: %w", err)
		}
		within, err := sf.Within(b, usableOverlay)
		if err != nil {
			return 0, fmt.Errorf("could not test building containment: %w", err)
		}
		if within {
			total += geomhelp.PolygonArea(building)
		}
	}
	return total, nil
}
