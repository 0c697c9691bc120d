package gpkg

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"

	"github.com/homesgap/density/density"
	"github.com/homesgap/density/model"
)

// RecordLayer is the table computed records are written to.
const RecordLayer = "msoa_density"

// BritishNationalGrid is the spatial reference of the record layer.
var BritishNationalGrid = gpkg.SpatialReferenceSystem{
	Name:                   "OSGB36 / British National Grid",
	ID:                     27700,
	Organization:           "EPSG",
	OrganizationCoordsysID: 27700,
	Definition: `PROJCS["OSGB36 / British National Grid",GEOGCS["OSGB36",DATUM["Ordnance_Survey_of_Great_Britain_1936",` +
		`SPHEROID["Airy 1830",6377563.396,299.3249646,AUTHORITY["EPSG","7001"]],AUTHORITY["EPSG","6277"]],` +
		`PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],` +
		`AUTHORITY["EPSG","4277"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",49],` +
		`PARAMETER["central_meridian",-2],PARAMETER["scale_factor",0.9996012717],PARAMETER["false_easting",400000],` +
		`PARAMETER["false_northing",-100000],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],` +
		`AXIS["Northing",NORTH],AUTHORITY["EPSG","27700"]]`,
	Description: "United Kingdom Ordnance Survey National Grid",
}

func recordTable() Table {
	return Table{
		Name: RecordLayer,
		columns: []column{
			{name: "fid", ctype: "INTEGER", pk: 1},
			{name: "msoa_code", ctype: "TEXT", notnull: 1},
			{name: "msoa_name", ctype: "TEXT"},
			{name: "urban_area", ctype: "REAL"},
			{name: "building_coverage_area", ctype: "REAL"},
			{name: "total_dwellings", ctype: "INTEGER"},
			{name: "detached_or_semi", ctype: "INTEGER"},
			{name: "population", ctype: "INTEGER"},
			{name: "target_density", ctype: "REAL"},
			{name: "new_homes", ctype: "REAL"},
			{name: "geom", ctype: "MULTIPOLYGON"},
		},
		gcolumn: "geom",
		gtype:   gpkg.MultiPolygon,
		srs:     BritishNationalGrid,
	}
}

// RecordTarget writes area records with their usable polygon to a GeoPackage.
type RecordTarget struct {
	Table    Table
	pagesize int
	handle   *gpkg.Handle
	// extent of everything written so far
	extent *geom.Extent
}

// NewRecordTarget creates the record layer in file. With overwrite an existing file is
// removed first.
func NewRecordTarget(file string, overwrite bool, pagesize int) (*RecordTarget, error) {
	if overwrite {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not remove target file: %w", err)
		}
	}
	if pagesize < 1 {
		pagesize = 1
	}
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening target GeoPackage: %w", err)
	}
	target := &RecordTarget{Table: recordTable(), pagesize: pagesize, handle: handle}
	if err = buildTable(handle, target.Table); err != nil {
		handle.Close()
		return nil, err
	}
	return target, nil
}

func (target *RecordTarget) Close() error {
	return target.handle.Close()
}

// WriteRecords writes the records it receives, pagesize records per transaction, until
// the channel is closed.
func (target *RecordTarget) WriteRecords(records <-chan model.AreaDensityRecord) error {
	var page []model.AreaDensityRecord
	var written int
	for rec := range records {
		page = append(page, rec)
		if len(page)%target.pagesize == 0 {
			if err := target.writeRecords(page); err != nil {
				drain(records)
				return err
			}
			written += len(page)
			page = nil
		}
	}
	if err := target.writeRecords(page); err != nil {
		return err
	}
	written += len(page)
	log.Printf("    written to %s: %d", target.Table.Name, written)
	return nil
}

func drain(records <-chan model.AreaDensityRecord) {
	//nolint:revive
	for range records {
	}
}

// modelColumns returns the target density and new homes, nil when the model is unavailable
func modelColumns(rec model.AreaDensityRecord) (interface{}, interface{}) {
	target, err := density.TargetDensity(rec)
	if err != nil {
		return nil, nil
	}
	estimate, err := density.NewHomesEstimate(rec)
	if err != nil {
		return nil, nil
	}
	return target, estimate
}

func (target *RecordTarget) writeRecords(records []model.AreaDensityRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := target.handle.Begin()
	if err != nil {
		return fmt.Errorf("could not start a transaction: %w", err)
	}

	stmt, err := tx.Prepare(target.Table.insertSQL())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("could not prepare a statement: %w", err)
	}
	defer stmt.Close()

	ext := target.extent

	for _, rec := range records {
		// an area without usable land gets a NULL geometry
		var sb interface{}
		if len(rec.Usable) > 0 {
			sb, err = gpkg.NewBinary(int32(target.Table.srs.ID), rec.Usable)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("could not create a binary geometry for %s: %w", rec.Identity.Code, err)
			}
		}

		targetDensity, newHomes := modelColumns(rec)
		_, err = stmt.Exec(rec.Identity.Code, rec.Identity.Name, rec.UsableArea, rec.BuildingCoverageArea,
			rec.Dwellings.TotalDwellings, rec.Dwellings.DetachedOrSemi, rec.Population, targetDensity, newHomes, sb)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not write %s: %w", rec.Identity.Code, err)
		}

		if len(rec.Usable) == 0 {
			continue
		}
		if ext == nil {
			ext, err = geom.NewExtentFromGeometry(rec.Usable)
			if err != nil {
				ext = nil
				log.Println("Failed to create new extent:", err)
				continue
			}
		} else {
			ext.AddGeometry(rec.Usable)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit: %w", err)
	}

	if ext == nil {
		return nil
	}
	target.extent = ext
	if err = target.handle.UpdateGeometryExtent(target.Table.Name, ext); err != nil {
		return fmt.Errorf("failed to update new extent: %w", err)
	}
	return nil
}
