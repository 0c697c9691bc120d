package processing

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/homesgap/density/area"
	"github.com/homesgap/density/model"
)

// GeoJSONTarget writes all records of a run as one WGS84 FeatureCollection, sorted by area
// code. The file is written when the run ends.
type GeoJSONTarget struct {
	Path string
}

func (t GeoJSONTarget) WriteRecords(records <-chan model.AreaDensityRecord) error {
	var collected []model.AreaDensityRecord
	for rec := range records {
		collected = append(collected, rec)
	}
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].Identity.Code < collected[j].Identity.Code
	})

	data, err := json.Marshal(area.ToFeatureCollection(collected))
	if err != nil {
		return fmt.Errorf("could not encode feature collection: %w", err)
	}
	if err = os.WriteFile(t.Path, data, 0o644); err != nil {
		return fmt.Errorf("could not write %s: %w", t.Path, err)
	}
	log.Printf("    written to %s: %d", t.Path, len(collected))
	return nil
}
