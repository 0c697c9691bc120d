// Package sieve drops the slivers that subtracting green space can leave behind: tiny
// disjoint parts of a usable area and tiny holes inside it.
package sieve

import (
	"github.com/go-spatial/geom"

	"github.com/homesgap/density/geomhelp"
)

// polygonSieve will sieve a given POLYGON
func polygonSieve(p geom.Polygon, minArea float64) geom.Polygon {
	if geomhelp.PolygonArea(p) > minArea {
		if len(p) > 1 {
			var sievedPolygon geom.Polygon
			sievedPolygon = append(sievedPolygon, p[0])
			for _, interior := range p[1:] {
				if geomhelp.Shoelace(interior) > minArea {
					sievedPolygon = append(sievedPolygon, interior)
				}
			}
			return sievedPolygon
		}
		return p
	}
	return nil
}

// Sieve removes parts and holes whose area is not above resolution².
// A resolution of 0 only removes parts without any area.
func Sieve(mp geom.MultiPolygon, resolution float64) geom.MultiPolygon {
	minArea := resolution * resolution
	var sieved geom.MultiPolygon
	for _, p := range mp {
		if sp := polygonSieve(p, minArea); sp != nil {
			sieved = append(sieved, sp)
		}
	}
	return sieved
}
