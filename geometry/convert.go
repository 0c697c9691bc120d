package geometry

import (
	"strconv"
	"strings"

	"github.com/go-spatial/geom"
	sf "github.com/peterstace/simplefeatures/geom"
)

// toOverlay turns polygons into a single simplefeatures geometry for the overlay operations.
// WKT with shortest round-trip float formatting keeps coordinates bit-exact.
func toOverlay(polygons ...geom.Polygon) (sf.Geometry, error) {
	var sb strings.Builder
	if len(polygons) == 1 {
		sb.WriteString("POLYGON ")
		writePolygon(&sb, polygons[0])
	} else {
		sb.WriteString("MULTIPOLYGON ")
		if len(polygons) == 0 {
			sb.WriteString("EMPTY")
		} else {
			sb.WriteByte('(')
			for i, p := range polygons {
				if i > 0 {
					sb.WriteByte(',')
				}
				writePolygon(&sb, p)
			}
			sb.WriteByte(')')
		}
	}
	return sf.UnmarshalWKT(sb.String())
}

func writePolygon(sb *strings.Builder, p geom.Polygon) {
	if len(p) == 0 {
		sb.WriteString("EMPTY")
		return
	}
	sb.WriteByte('(')
	for i, ring := range p {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeRing(sb, ring)
	}
	sb.WriteByte(')')
}

func writeRing(sb *strings.Builder, ring [][2]float64) {
	sb.WriteByte('(')
	for j, pt := range ring {
		if j > 0 {
			sb.WriteByte(',')
		}
		writePoint(sb, pt)
	}
	// WKT rings are closed
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		sb.WriteByte(',')
		writePoint(sb, ring[0])
	}
	sb.WriteByte(')')
}

// isSimpleRing reports whether the closed ring is simple: no edge crosses or touches
// another except neighbours at their shared vertex.
func isSimpleRing(ring [][2]float64) (bool, error) {
	var sb strings.Builder
	sb.WriteString("LINESTRING ")
	writeRing(&sb, ring)
	g, err := sf.UnmarshalWKT(sb.String(), sf.NoValidate{})
	if err != nil {
		return false, err
	}
	return g.MustAsLineString().IsRing(), nil
}

func writePoint(sb *strings.Builder, pt [2]float64) {
	sb.WriteString(strconv.FormatFloat(pt[0], 'f', -1, 64))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatFloat(pt[1], 'f', -1, 64))
}

// fromOverlay keeps the polygonal parts of an overlay result.
// Lines and points that an overlay can leave behind in a collection are dropped.
func fromOverlay(g sf.Geometry) geom.MultiPolygon {
	var mp geom.MultiPolygon
	switch g.Type() {
	case sf.TypePolygon:
		if p := fromOverlayPolygon(g.MustAsPolygon()); p != nil {
			mp = append(mp, p)
		}
	case sf.TypeMultiPolygon:
		multi := g.MustAsMultiPolygon()
		for i := 0; i < multi.NumPolygons(); i++ {
			if p := fromOverlayPolygon(multi.PolygonN(i)); p != nil {
				mp = append(mp, p)
			}
		}
	case sf.TypeGeometryCollection:
		collection := g.MustAsGeometryCollection()
		for i := 0; i < collection.NumGeometries(); i++ {
			mp = append(mp, fromOverlay(collection.GeometryN(i))...)
		}
	}
	return mp
}

func fromOverlayPolygon(p sf.Polygon) geom.Polygon {
	if p.IsEmpty() {
		return nil
	}
	polygon := make(geom.Polygon, 0, 1+p.NumInteriorRings())
	polygon = append(polygon, fromOverlayRing(p.ExteriorRing()))
	for i := 0; i < p.NumInteriorRings(); i++ {
		polygon = append(polygon, fromOverlayRing(p.InteriorRingN(i)))
	}
	return polygon
}

func fromOverlayRing(ring sf.LineString) [][2]float64 {
	seq := ring.Coordinates()
	n := seq.Length()
	pts := make([][2]float64, n)
	for i := 0; i < n; i++ {
		xy := seq.GetXY(i)
		pts[i] = [2]float64{xy.X, xy.Y}
	}
	return pts
}
