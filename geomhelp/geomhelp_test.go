package geomhelp

import (
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
)

func TestShoelace(t *testing.T) {
	var tests = []struct {
		pts  [][2]float64
		area float64
	}{
		// Rectangle
		0: {pts: [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}, area: float64(100)},
		// Triangle
		1: {pts: [][2]float64{{0, 0}, {5, 10}, {0, 10}, {0, 0}}, area: float64(25)},
		// Missing 'official closing point
		2: {pts: [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}}, area: float64(100)},
		// Single point
		3: {pts: [][2]float64{{1234, 4321}}, area: float64(0.000000)},
		// No point
		4: {pts: nil, area: float64(0.000000)},
		// Empty point
		5: {pts: [][2]float64{}, area: float64(0.000000)},
		// Concave L shape
		6: {pts: [][2]float64{{0, 0}, {4, 0}, {4, 1}, {1, 1}, {1, 4}, {0, 4}}, area: float64(7)},
	}

	for k, test := range tests {
		area := Shoelace(test.pts)
		if area != test.area {
			t.Errorf("test: %d, expected: %f \ngot: %f", k, test.area, area)
		}
	}
}

func TestPolygonArea(t *testing.T) {
	var tests = []struct {
		geom [][][2]float64
		area float64
	}{
		// Rectangle
		0: {geom: [][][2]float64{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}, area: float64(100)},
		// Rectangle with hole
		1: {geom: [][][2]float64{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}, {{2, 2}, {2, 8}, {8, 8}, {8, 2}, {2, 2}}}, area: float64(64)},
		// Rectangle with empty hole
		2: {geom: [][][2]float64{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}, {}}, area: float64(100)},
		// nil geometry
		3: {geom: nil, area: float64(0)},
	}

	for k, test := range tests {
		area := PolygonArea(test.geom)
		if area != test.area {
			t.Errorf("test: %d, expected: %f \ngot: %f", k, test.area, area)
		}
	}
}

func TestMultiPolygonArea(t *testing.T) {
	mp := [][][][2]float64{
		{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
		{{{20, 0}, {22, 0}, {22, 2}, {20, 2}}},
	}
	assert.Equal(t, 104., MultiPolygonArea(mp))
	assert.Equal(t, 0., MultiPolygonArea(nil))
}

func TestIsClockwise(t *testing.T) {
	assert.True(t, IsClockwise([][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}}))
	assert.False(t, IsClockwise([][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}))
}

func TestOpenRing(t *testing.T) {
	var tests = []struct {
		ring     [][2]float64
		expected [][2]float64
	}{
		0: {ring: [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, expected: [][2]float64{{0, 0}, {1, 0}, {1, 1}}},
		1: {ring: [][2]float64{{0, 0}, {1, 0}, {1, 0}, {1, 1}}, expected: [][2]float64{{0, 0}, {1, 0}, {1, 1}}},
		2: {ring: [][2]float64{{0, 0}, {0, 0}}, expected: [][2]float64{{0, 0}}},
		3: {ring: nil, expected: [][2]float64{}},
	}
	for k, test := range tests {
		assert.Equalf(t, test.expected, OpenRing(test.ring), "test: %d", k)
	}
}

func TestClosedPolygon(t *testing.T) {
	closed := [][][2]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	assert.Equal(t, closed, ClosedPolygon([][][2]float64{{{0, 0}, {1, 0}, {1, 1}}}))
	assert.Equal(t, closed, ClosedPolygon([][][2]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}))
	assert.Equal(t, closed, ClosedPolygon([][][2]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 0}, {0, 0}}}))
	assert.Empty(t, ClosedPolygon(nil))
}

func TestDistinctVertices(t *testing.T) {
	assert.Equal(t, 3, DistinctVertices([][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 0}}))
	assert.Equal(t, 2, DistinctVertices([][2]float64{{0, 0}, {1, 0}, {0, 0}, {1, 0}}))
	assert.Equal(t, 0, DistinctVertices(nil))
}

func TestWktMustEncode(t *testing.T) {
	p := geom.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}
	full := WktMustEncode(p, 0)
	assert.Contains(t, full, "POLYGON")
	assert.Contains(t, full, "1 1")
	truncated := WktMustEncode(p, 10)
	assert.LessOrEqual(t, len(truncated), 10)
	assert.Contains(t, truncated, "...")
}
