package gpkg

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"

	"github.com/homesgap/density/geometry"
	"github.com/homesgap/density/geomhelp"
)

// BuildingsTable is the Zoomstack layer of building footprints.
const BuildingsTable = "local_buildings"

// LayerSource reads polygons from the feature tables of a GeoPackage. It is safe for
// concurrent use.
type LayerSource struct {
	handle *gpkg.Handle
	tables map[string]Table
}

// OpenLayerSource opens an existing GeoPackage for reading.
func OpenLayerSource(file string) (*LayerSource, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("error opening source GeoPackage: %w", err)
	}
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening source GeoPackage: %w", err)
	}
	tables, err := readTableInfo(handle)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return &LayerSource{handle: handle, tables: tables}, nil
}

func (source *LayerSource) Close() error {
	return source.handle.Close()
}

// Tables lists the feature tables, sorted by name.
func (source *LayerSource) Tables() []string {
	names := make([]string, 0, len(source.tables))
	for name := range source.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (source *LayerSource) hasRTree(ctx context.Context, t Table) bool {
	var name string
	row := source.handle.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;`, t.rtreeName())
	return row.Scan(&name) == nil
}

// selectSQL builds the SELECT statement for the geometries of a table within a bbox,
// through the spatial index when there is one
func (source *LayerSource) selectSQL(ctx context.Context, t Table) (string, bool) {
	if source.hasRTree(ctx, t) {
		return fmt.Sprintf(`SELECT t."%s" FROM "%s" t JOIN "%s" r ON t."%s" = r.id WHERE r.minx <= ? AND r.maxx >= ? AND r.miny <= ? AND r.maxy >= ?;`,
			t.gcolumn, t.Name, t.rtreeName(), t.primaryKey()), true
	}
	return fmt.Sprintf(`SELECT "%s" FROM "%s";`, t.gcolumn, t.Name), false
}

// ReadPolygons returns the polygons of a table whose extent overlaps bbox. Multi polygons
// are split into their polygons, other geometry types are skipped.
func (source *LayerSource) ReadPolygons(ctx context.Context, table string, bbox geom.Extent) ([]geom.Polygon, error) {
	t, ok := source.tables[table]
	if !ok {
		return nil, fmt.Errorf("GeoPackage has no feature table %s", table)
	}

	query, indexed := source.selectSQL(ctx, t)
	var args []interface{}
	if indexed {
		args = []interface{}{bbox.MaxX(), bbox.MinX(), bbox.MaxY(), bbox.MinY()}
	}
	rows, err := source.handle.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %w", table, err)
	}
	defer rows.Close()

	var polygons []geom.Polygon
	var skipped int
	for rows.Next() {
		var blob []byte
		if err = rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("error reading row of %s: %w", table, err)
		}
		if blob == nil {
			continue
		}
		sb, err := gpkg.DecodeGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("error decoding the geometry of %s: %w", table, err)
		}
		if !indexed {
			ext, err := geometry.BoundingBox(sb.Geometry)
			if err != nil || !geometry.Overlaps(ext, bbox) {
				continue
			}
		}
		switch g := sb.Geometry.(type) {
		case geom.Polygon:
			polygons = append(polygons, geomhelp.ClosedPolygon(g))
		case geom.MultiPolygon:
			for _, p := range g {
				polygons = append(polygons, geomhelp.ClosedPolygon(p))
			}
		default:
			skipped++
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Printf("    skipped %d non-polygons in %s", skipped, table)
	}
	return polygons, nil
}

// Zoomstack serves the exclusion and building layers of an OS Open Zoomstack GeoPackage.
type Zoomstack struct {
	Source          *LayerSource
	ExclusionTables []string
	BuildingTable   string
}

// NewZoomstack uses the standard Zoomstack layer names.
func NewZoomstack(source *LayerSource) Zoomstack {
	return Zoomstack{Source: source, ExclusionTables: geometry.ExclusionLayerNames, BuildingTable: BuildingsTable}
}

func (z Zoomstack) FetchExclusionLayers(ctx context.Context, bbox geom.Extent) ([]geometry.ExclusionLayer, error) {
	layers := make([]geometry.ExclusionLayer, 0, len(z.ExclusionTables))
	for _, table := range z.ExclusionTables {
		polygons, err := z.Source.ReadPolygons(ctx, table, bbox)
		if err != nil {
			return nil, err
		}
		layers = append(layers, geometry.ExclusionLayer{Name: table, Polygons: polygons})
	}
	return layers, nil
}

func (z Zoomstack) FetchBuildings(ctx context.Context, bbox geom.Extent) ([]geom.Polygon, error) {
	return z.Source.ReadPolygons(ctx, z.BuildingTable, bbox)
}
