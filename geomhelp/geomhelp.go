package geomhelp

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
)

// https://en.wikipedia.org/wiki/Shoelace_formula
func Shoelace(pts [][2]float64) float64 {
	sum := 0.
	if len(pts) == 0 {
		return 0.
	}

	p0 := pts[len(pts)-1]
	for _, p1 := range pts {
		sum += p0[1]*p1[0] - p0[0]*p1[1]
		p0 = p1
	}
	return math.Abs(sum / 2)
}

// PolygonArea is the area of the outer ring minus the areas of the holes
func PolygonArea(p [][][2]float64) float64 {
	if len(p) == 0 {
		return 0.
	}
	interior := .0
	for _, hole := range p[1:] {
		interior += Shoelace(hole)
	}
	return Shoelace(p[0]) - interior
}

// MultiPolygonArea sums PolygonArea over all polygons
func MultiPolygonArea(mp [][][][2]float64) float64 {
	total := .0
	for _, p := range mp {
		total += PolygonArea(p)
	}
	return total
}

// IsClockwise uses the signed shoelace sum (y axis pointing up)
func IsClockwise(pts [][2]float64) bool {
	sum := 0.
	if len(pts) == 0 {
		return false
	}
	p0 := pts[len(pts)-1]
	for _, p1 := range pts {
		sum += (p1[0] - p0[0]) * (p1[1] + p0[1])
		p0 = p1
	}
	return sum > 0
}

// OpenRing drops consecutive duplicate vertices and the closing vertex, if any.
// The result is a fresh slice.
func OpenRing(ring [][2]float64) [][2]float64 {
	open := make([][2]float64, 0, len(ring))
	for _, pt := range ring {
		if len(open) > 0 && open[len(open)-1] == pt {
			continue
		}
		open = append(open, pt)
	}
	for len(open) > 1 && open[0] == open[len(open)-1] {
		open = open[:len(open)-1]
	}
	return open
}

// ClosedPolygon returns the polygon with every ring ending on its first vertex exactly
// once, whichever closing convention the input follows.
func ClosedPolygon(p [][][2]float64) [][][2]float64 {
	closed := make([][][2]float64, 0, len(p))
	for _, ring := range p {
		r := OpenRing(ring)
		if len(r) > 0 {
			r = append(r, r[0])
		}
		closed = append(closed, r)
	}
	return closed
}

// DistinctVertices counts the distinct vertices in a ring
func DistinctVertices(ring [][2]float64) int {
	seen := make(map[[2]float64]struct{}, len(ring))
	for _, pt := range ring {
		seen[pt] = struct{}{}
	}
	return len(seen)
}

func WktMustEncode(g geom.Geometry, maxLen uint) (s string) {
	p, isPoly := g.(geom.Polygon)
	if !isPoly {
		return wktMustEncodeTruncated(g, maxLen)
	}

	var lines []geom.LineString
	var points []geom.Point
	pp := make(geom.Polygon, len(p))
	copy(pp, p)
	for r := 0; r < len(pp); r++ {
		switch len(pp[r]) {
		default:
			continue
		case 0:
		case 1:
			points = append(points, pp[r][0])
		case 2:
			lines = append(lines, pp[r])
		}
		pp = append(pp[:r], pp[r+1:]...)
		r--
	}

	if len(pp) > 0 {
		s = wktMustEncodeTruncated(pp, maxLen)
	}
	for i := range lines {
		s += wktMustEncodeTruncated(lines[i], maxLen)
	}
	for i := range points {
		s += wktMustEncodeTruncated(points[i], maxLen)
	}
	return s
}

func wktMustEncodeTruncated(geom geom.Geometry, width uint) string {
	if width == 0 {
		return wkt.MustEncode(geom)
	}
	return truncate.StringWithTail(wkt.MustEncode(geom), width, "...")
}
