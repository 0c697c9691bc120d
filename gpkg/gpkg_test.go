package gpkg

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesgap/density/model"
)

func square(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func testRecords() []model.AreaDensityRecord {
	return []model.AreaDensityRecord{
		{
			Identity:             model.AreaIdentity{Code: "E02003491", Name: "Brighton and Hove 001"},
			Usable:               geom.MultiPolygon{square(0, 0, 100, 100), square(200, 0, 300, 100)},
			UsableArea:           20_000,
			BuildingCoverageArea: 5_000,
			Dwellings:            model.DwellingInfo{TotalDwellings: 100, DetachedOrSemi: 20},
			Population:           150,
		},
		{
			Identity:   model.AreaIdentity{Code: "E02003492", Name: "Brighton and Hove 002"},
			Usable:     geom.MultiPolygon{square(10_000, 10_000, 10_100, 10_100)},
			UsableArea: 10_000,
			Population: 10,
		},
		{
			Identity: model.AreaIdentity{Code: "E02003493", Name: "Brighton and Hove 003"},
		},
	}
}

func writeTestRecords(t *testing.T, pagesize int) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "density.gpkg")
	target, err := NewRecordTarget(file, true, pagesize)
	require.NoError(t, err)

	records := make(chan model.AreaDensityRecord)
	go func() {
		for _, rec := range testRecords() {
			records <- rec
		}
		close(records)
	}()
	require.NoError(t, target.WriteRecords(records))
	require.NoError(t, target.Close())
	return file
}

func TestInsertSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "msoa_density"(msoa_code,msoa_name,urban_area,building_coverage_area,total_dwellings,detached_or_semi,population,target_density,new_homes,geom) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		recordTable().insertSQL())
}

func TestCreateSQL(t *testing.T) {
	sql := recordTable().createSQL()
	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "msoa_density"(fid INTEGER PRIMARY KEY AUTOINCREMENT, msoa_code TEXT NOT NULL`)
	assert.Contains(t, sql, `geom MULTIPOLYGON);`)
}

func TestGeometryTypeFromString(t *testing.T) {
	assert.Equal(t, recordTable().gtype, geometryTypeFromString("MultiPolygon"))
	assert.Equal(t, geometryTypeFromString("GEOMETRY"), geometryTypeFromString("unknown"))
}

func TestRecordTargetColumns(t *testing.T) {
	for _, pagesize := range []int{1, 2, 1000} {
		file := writeTestRecords(t, pagesize)
		source, err := OpenLayerSource(file)
		require.NoError(t, err)

		assert.Contains(t, source.Tables(), RecordLayer)

		rows, err := source.handle.Query(`SELECT msoa_code, total_dwellings, target_density, new_homes FROM msoa_density ORDER BY fid`)
		require.NoError(t, err)
		type row struct {
			code          string
			dwellings     int
			targetDensity *float64
			newHomes      *float64
		}
		var got []row
		for rows.Next() {
			var r row
			require.NoError(t, rows.Scan(&r.code, &r.dwellings, &r.targetDensity, &r.newHomes))
			got = append(got, r)
		}
		require.NoError(t, rows.Err())
		rows.Close()

		require.Len(t, got, 3)
		assert.Equal(t, "E02003491", got[0].code)
		assert.Equal(t, 100, got[0].dwellings)
		require.NotNil(t, got[0].targetDensity)
		// 50 dwellings/ha, 20% detached: mixed band, 25% coverage
		assert.InDelta(t, 62.5, *got[0].targetDensity, 1e-9)
		require.NotNil(t, got[0].newHomes)
		assert.InDelta(t, 25, *got[0].newHomes, 1e-9)
		// no dwellings, no model
		assert.Nil(t, got[1].targetDensity)
		assert.Nil(t, got[1].newHomes)

		require.NoError(t, source.Close())
	}
}

func readBoth(t *testing.T, source *LayerSource) {
	t.Helper()
	ctx := context.Background()

	polygons, err := source.ReadPolygons(ctx, RecordLayer, geom.Extent{-10, -10, 150, 150})
	require.NoError(t, err)
	// the first record's multi polygon is split, its extent overlaps
	assert.Len(t, polygons, 2)

	polygons, err = source.ReadPolygons(ctx, RecordLayer, geom.Extent{10_050, 10_050, 20_000, 20_000})
	require.NoError(t, err)
	require.Len(t, polygons, 1)
	assert.Equal(t, square(10_000, 10_000, 10_100, 10_100), polygons[0])

	polygons, err = source.ReadPolygons(ctx, RecordLayer, geom.Extent{50_000, 50_000, 60_000, 60_000})
	require.NoError(t, err)
	assert.Empty(t, polygons)
}

func TestLayerSourceReadPolygons(t *testing.T) {
	file := writeTestRecords(t, 2)
	source, err := OpenLayerSource(file)
	require.NoError(t, err)
	defer source.Close()

	readBoth(t, source)

	// same result through the spatial index
	_, err = source.handle.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS "rtree_msoa_density_geom" USING rtree(id, minx, maxx, miny, maxy)`)
	require.NoError(t, err)
	for fid, ext := range map[int][4]float64{1: {0, 300, 0, 100}, 2: {10_000, 10_100, 10_000, 10_100}} {
		_, err = source.handle.Exec(`INSERT OR REPLACE INTO "rtree_msoa_density_geom" VALUES (?, ?, ?, ?, ?)`, fid, ext[0], ext[1], ext[2], ext[3])
		require.NoError(t, err)
	}
	_, indexed := source.selectSQL(context.Background(), source.tables[RecordLayer])
	assert.True(t, indexed)
	readBoth(t, source)
}

func TestLayerSourceErrors(t *testing.T) {
	_, err := OpenLayerSource(filepath.Join(t.TempDir(), "missing.gpkg"))
	require.Error(t, err)

	source, err := OpenLayerSource(writeTestRecords(t, 10))
	require.NoError(t, err)
	defer source.Close()
	_, err = source.ReadPolygons(context.Background(), "no_such_table", geom.Extent{0, 0, 1, 1})
	require.Error(t, err)
}

func TestZoomstack(t *testing.T) {
	source, err := OpenLayerSource(writeTestRecords(t, 10))
	require.NoError(t, err)
	defer source.Close()

	z := Zoomstack{Source: source, ExclusionTables: []string{RecordLayer, RecordLayer}, BuildingTable: RecordLayer}
	bbox := geom.Extent{-10, -10, 150, 150}

	layers, err := z.FetchExclusionLayers(context.Background(), bbox)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, RecordLayer, layers[0].Name)
	assert.Len(t, layers[1].Polygons, 2)

	buildings, err := z.FetchBuildings(context.Background(), bbox)
	require.NoError(t, err)
	assert.Len(t, buildings, 2)

	_, err = NewZoomstack(source).FetchBuildings(context.Background(), bbox)
	require.Error(t, err)
}
