// Package gpkg reads the polygon layers of the OS Open Zoomstack GeoPackage and writes
// computed area records to a GeoPackage.
package gpkg

import (
	"fmt"
	"log"
	"strings"

	"github.com/go-spatial/geom/encoding/gpkg"
)

type column struct {
	cid       int
	name      string
	ctype     string
	notnull   int
	dfltValue *string
	pk        int
}

// Table describes a feature table of a GeoPackage.
type Table struct {
	Name    string
	columns []column
	gcolumn string
	gtype   gpkg.GeometryType
	srs     gpkg.SpatialReferenceSystem
}

// geometryTypeFromString returns the numeric value of a gometry string
func geometryTypeFromString(geometrytype string) gpkg.GeometryType {
	switch strings.ToUpper(geometrytype) {
	case "GEOMETRY":
		return gpkg.Geometry
	case "POINT":
		return gpkg.Point
	case "LINESTRING":
		return gpkg.Linestring
	case "POLYGON":
		return gpkg.Polygon
	case "MULTIPOINT":
		return gpkg.MultiPoint
	case "MULTILINESTRING":
		return gpkg.MultiLinestring
	case "MULTIPOLYGON":
		return gpkg.MultiPolygon
	case "GEOMETRYCOLLECTION":
		return gpkg.GeometryCollection
	default:
		return gpkg.Geometry
	}
}

func (t Table) primaryKey() string {
	for _, c := range t.columns {
		if c.pk == 1 {
			return c.name
		}
	}
	return "fid"
}

// rtreeName is the name GeoPackage gives the R-tree index of the geometry column.
func (t Table) rtreeName() string {
	return "rtree_" + t.Name + "_" + t.gcolumn
}

// createSQL creates a CREATE statement on the given table and column information
// used for creating feature tables in the target Geopackage
func (t Table) createSQL() string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%v"`, t.Name)
	var columnparts []string
	for _, column := range t.columns {
		columnpart := column.name + ` ` + column.ctype
		if column.notnull == 1 {
			columnpart = columnpart + ` NOT NULL`
		}
		if column.pk == 1 {
			columnpart = columnpart + ` PRIMARY KEY AUTOINCREMENT`
		}

		columnparts = append(columnparts, columnpart)
	}

	query := create + `(` + strings.Join(columnparts, `, `) + `);`
	return query
}

// insertSQL used for writing the features
// build the INSERT statement based on the table and columns, the primary key is left
// to sqlite
func (t Table) insertSQL() string {
	var csql, vsql []string
	for _, c := range t.columns {
		if c.name != t.gcolumn && c.pk != 1 {
			csql = append(csql, c.name)
			vsql = append(vsql, `?`)
		}
	}
	csql = append(csql, t.gcolumn)
	vsql = append(vsql, `?`)
	query := `INSERT INTO "` + t.Name + `"(` + strings.Join(csql, `,`) + `) VALUES(` + strings.Join(vsql, `,`) + `)`
	return query
}

// readTableInfo collects the feature tables registered in gpkg_geometry_columns
func readTableInfo(h *gpkg.Handle) (map[string]Table, error) {
	query := `SELECT table_name, column_name, geometry_type_name, srs_id FROM gpkg_geometry_columns;`
	rows, err := h.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error reading table information: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]Table)
	for rows.Next() {
		var t Table
		var gtype string
		var srsID int
		if err = rows.Scan(&t.Name, &t.gcolumn, &gtype, &srsID); err != nil {
			return nil, fmt.Errorf("error reading the source table information: %w", err)
		}
		t.gtype = geometryTypeFromString(gtype)
		t.srs.ID = srsID
		tables[t.Name] = t
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for name, t := range tables {
		if t.columns, err = getTableColumns(h, name); err != nil {
			return nil, err
		}
		t.srs = getSpatialReferenceSystem(h, t.srs.ID)
		tables[name] = t
	}
	return tables, nil
}

// getSpatialReferenceSystem extracts this based on the given SRS id
func getSpatialReferenceSystem(h *gpkg.Handle, id int) gpkg.SpatialReferenceSystem {
	var srs gpkg.SpatialReferenceSystem
	query := `SELECT srs_name, srs_id, organization, organization_coordsys_id, definition, description FROM gpkg_spatial_ref_sys WHERE srs_id = ?;`

	row := h.QueryRow(query, id)
	var description *string
	if err := row.Scan(&srs.Name, &srs.ID, &srs.Organization, &srs.OrganizationCoordsysID, &srs.Definition, &description); err != nil {
		log.Printf("could not read spatial reference system %d: %s", id, err)
		srs.ID = id
	}
	if description != nil {
		srs.Description = *description
	}

	return srs
}

// getTableColumns collects the column information of a given table
func getTableColumns(h *gpkg.Handle, table string) ([]column, error) {
	var columns []column
	query := `PRAGMA table_info('%v');`
	rows, err := h.Query(fmt.Sprintf(query, table))
	if err != nil {
		return nil, fmt.Errorf("error reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var column column
		err := rows.Scan(&column.cid, &column.name, &column.ctype, &column.notnull, &column.dfltValue, &column.pk)
		if err != nil {
			return nil, fmt.Errorf("error getting the column information: %w", err)
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

// buildTable creates a given destination table with the necessary gpkg_ information
func buildTable(h *gpkg.Handle, t Table) error {
	if err := h.UpdateSRS(t.srs); err != nil {
		return err
	}

	query := t.createSQL()
	if _, err := h.Exec(query); err != nil {
		return fmt.Errorf("error building table in target GeoPackage: %w", err)
	}

	err := h.AddGeometryTable(gpkg.TableDescription{
		Name:          t.Name,
		ShortName:     t.Name,
		Description:   t.Name,
		GeometryField: t.gcolumn,
		GeometryType:  t.gtype,
		SRS:           int32(t.srs.ID),
		//
		Z: gpkg.Prohibited,
		M: gpkg.Prohibited,
	})
	if err != nil {
		return fmt.Errorf("error adding geometry table in target GeoPackage: %w", err)
	}
	return nil
}
