// Package projection converts British National Grid coordinates (EPSG:27700) to WGS84
// longitude/latitude (EPSG:4326) for display. Area computations never use its output.
//
// The conversion is the Ordnance Survey one: inverse transverse Mercator on the Airy 1830
// ellipsoid to OSGB36, then a seven parameter Helmert transformation to WGS84. It is
// accurate to a few metres, which is plenty for a web map.
package projection

import (
	"math"

	"github.com/go-spatial/geom"
)

type ellipsoid struct {
	a, b float64
}

func (e ellipsoid) eccentricitySquared() float64 {
	return 1 - (e.b*e.b)/(e.a*e.a)
}

var (
	airy1830 = ellipsoid{a: 6377563.396, b: 6356256.909}
	wgs84    = ellipsoid{a: 6378137.000, b: 6356752.3142}
)

// National Grid projection constants
const (
	scaleFactor    = 0.9996012717
	originLat      = 49.0
	originLon      = -2.0
	falseEasting   = 400000.0
	falseNorthing  = -100000.0
	arcTolerance   = 0.00001
	latTolerance   = 1e-12
	maxLatIterates = 20
)

// OSGB36 to WGS84 Helmert parameters: metres, ppm and arc seconds
const (
	tx = 446.448
	ty = -125.157
	tz = 542.060
	s  = -20.4894
	rx = 0.1502
	ry = 0.2470
	rz = 0.8421
)

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// meridionalArc is the developed arc of the central meridian from the true origin to lat.
func meridionalArc(lat float64) float64 {
	e := airy1830
	n := (e.a - e.b) / (e.a + e.b)
	n2, n3 := n*n, n*n*n
	lat0 := radians(originLat)
	dLat, sLat := lat-lat0, lat+lat0

	ma := (1 + n + 5./4*n2 + 5./4*n3) * dLat
	mb := (3*n + 3*n2 + 21./8*n3) * math.Sin(dLat) * math.Cos(sLat)
	mc := (15./8*n2 + 15./8*n3) * math.Sin(2*dLat) * math.Cos(2*sLat)
	md := 35. / 24 * n3 * math.Sin(3*dLat) * math.Cos(3*sLat)
	return e.b * scaleFactor * (ma - mb + mc - md)
}

// gridToOSGB36 returns the OSGB36 latitude and longitude in radians of a grid position.
func gridToOSGB36(easting, northing float64) (lat, lon float64) {
	e := airy1830
	e2 := e.eccentricitySquared()
	aF0 := e.a * scaleFactor

	lat = radians(originLat)
	m := 0.
	for i := 0; i < maxLatIterates; i++ {
		lat += (northing - falseNorthing - m) / aF0
		m = meridionalArc(lat)
		if math.Abs(northing-falseNorthing-m) < arcTolerance {
			break
		}
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	nu := aF0 / math.Sqrt(1-e2*sinLat*sinLat)
	rho := aF0 * (1 - e2) / math.Pow(1-e2*sinLat*sinLat, 1.5)
	eta2 := nu/rho - 1

	tanLat := math.Tan(lat)
	tan2 := tanLat * tanLat
	tan4 := tan2 * tan2
	tan6 := tan4 * tan2
	secLat := 1 / cosLat
	nu3 := nu * nu * nu
	nu5 := nu3 * nu * nu
	nu7 := nu5 * nu * nu

	vii := tanLat / (2 * rho * nu)
	viii := tanLat / (24 * rho * nu3) * (5 + 3*tan2 + eta2 - 9*tan2*eta2)
	ix := tanLat / (720 * rho * nu5) * (61 + 90*tan2 + 45*tan4)
	x := secLat / nu
	xi := secLat / (6 * nu3) * (nu/rho + 2*tan2)
	xii := secLat / (120 * nu5) * (5 + 28*tan2 + 24*tan4)
	xiia := secLat / (5040 * nu7) * (61 + 662*tan2 + 1320*tan4 + 720*tan6)

	dE := easting - falseEasting
	dE2 := dE * dE
	dE3 := dE2 * dE
	dE4 := dE3 * dE
	dE5 := dE4 * dE
	dE6 := dE5 * dE
	dE7 := dE6 * dE

	lat = lat - vii*dE2 + viii*dE4 - ix*dE6
	lon = radians(originLon) + x*dE - xi*dE3 + xii*dE5 - xiia*dE7
	return lat, lon
}

func toCartesian(e ellipsoid, lat, lon float64) (x, y, z float64) {
	e2 := e.eccentricitySquared()
	sinLat := math.Sin(lat)
	nu := e.a / math.Sqrt(1-e2*sinLat*sinLat)
	x = nu * math.Cos(lat) * math.Cos(lon)
	y = nu * math.Cos(lat) * math.Sin(lon)
	z = (1 - e2) * nu * sinLat
	return x, y, z
}

func fromCartesian(e ellipsoid, x, y, z float64) (lat, lon float64) {
	e2 := e.eccentricitySquared()
	p := math.Sqrt(x*x + y*y)
	lat = math.Atan2(z, p*(1-e2))
	for i := 0; i < maxLatIterates; i++ {
		sinLat := math.Sin(lat)
		nu := e.a / math.Sqrt(1-e2*sinLat*sinLat)
		next := math.Atan2(z+e2*nu*sinLat, p)
		if math.Abs(next-lat) < latTolerance {
			lat = next
			break
		}
		lat = next
	}
	return lat, math.Atan2(y, x)
}

func helmert(x, y, z float64) (float64, float64, float64) {
	scale := 1 + s/1e6
	rX := radians(rx / 3600)
	rY := radians(ry / 3600)
	rZ := radians(rz / 3600)
	return tx + x*scale - y*rZ + z*rY,
		ty + x*rZ + y*scale - z*rX,
		tz - x*rY + y*rX + z*scale
}

// ToWGS84 converts an easting/northing pair to a longitude/latitude pair in degrees.
func ToWGS84(pt [2]float64) [2]float64 {
	lat, lon := gridToOSGB36(pt[0], pt[1])
	x, y, z := helmert(toCartesian(airy1830, lat, lon))
	lat, lon = fromCartesian(wgs84, x, y, z)
	return [2]float64{degrees(lon), degrees(lat)}
}

// RingToWGS84 converts every vertex of a ring.
func RingToWGS84(ring [][2]float64) [][2]float64 {
	if ring == nil {
		return nil
	}
	out := make([][2]float64, len(ring))
	for i, pt := range ring {
		out[i] = ToWGS84(pt)
	}
	return out
}

// PolygonToWGS84 converts every ring of a polygon.
func PolygonToWGS84(p geom.Polygon) geom.Polygon {
	out := make(geom.Polygon, len(p))
	for i, ring := range p {
		out[i] = RingToWGS84(ring)
	}
	return out
}

// MultiPolygonToWGS84 converts every polygon of a multi polygon.
func MultiPolygonToWGS84(mp geom.MultiPolygon) geom.MultiPolygon {
	out := make(geom.MultiPolygon, len(mp))
	for i, p := range mp {
		out[i] = PolygonToWGS84(p)
	}
	return out
}
