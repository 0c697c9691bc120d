package area

import (
	"encoding/json"
	"fmt"
	"log"
	"math"

	"github.com/go-spatial/geom/encoding/geojson"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/homesgap/density/density"
	"github.com/homesgap/density/mapslicehelp"
	"github.com/homesgap/density/model"
	"github.com/homesgap/density/projection"
)

// Raw property keys of a feature. Derived metric keys are in package density.
const (
	KeyCode                 = "msoa_code"
	KeyName                 = "msoa_name"
	KeyDwellingInfo         = "dwelling_info"
	KeyTotalDwellings       = "total_dwellings"
	KeyDetachedOrSemi       = "detached_or_semi"
	KeyUsableArea           = "urban_area"
	KeyBuildingCoverageArea = "building_coverage_area"
	KeyPopulation           = "population"
	KeyModel                = "model"
)

// ModelUnavailable marks a feature whose derived metrics could not be computed.
const ModelUnavailable = "unavailable"

// Properties returns the raw fields of a record followed by its derived metrics. Derived
// keys never overwrite raw ones. When the model cannot be computed the derived metrics
// are left out and KeyModel is set to ModelUnavailable.
func Properties(rec model.AreaDensityRecord) *orderedmap.OrderedMap[string, any] {
	props := orderedmap.New[string, any]()
	props.Set(KeyCode, rec.Identity.Code)
	props.Set(KeyName, rec.Identity.Name)
	props.Set(KeyDwellingInfo, map[string]any{
		KeyTotalDwellings: rec.Dwellings.TotalDwellings,
		KeyDetachedOrSemi: rec.Dwellings.DetachedOrSemi,
	})
	props.Set(KeyUsableArea, rec.UsableArea)
	props.Set(KeyBuildingCoverageArea, rec.BuildingCoverageArea)
	props.Set(KeyPopulation, rec.Population)

	metrics, err := density.DerivedMetrics(rec)
	if err != nil {
		props.Set(KeyModel, ModelUnavailable)
		return props
	}
	if collisions := mapslicehelp.MergeOrdered(props, metrics.Properties()); len(collisions) > 0 {
		log.Printf("derived properties %v of %s collide with raw ones, kept the raw values", collisions, rec.Identity.Code)
	}
	return props
}

// ToFeature renders a record as a GeoJSON feature with its usable polygon in WGS84.
func ToFeature(rec model.AreaDensityRecord) geojson.Feature {
	props := Properties(rec)
	properties := make(map[string]interface{}, props.Len())
	for p := props.Oldest(); p != nil; p = p.Next() {
		properties[p.Key] = p.Value
	}
	return geojson.Feature{
		Geometry:   geojson.Geometry{Geometry: projection.MultiPolygonToWGS84(rec.Usable)},
		Properties: properties,
	}
}

// ToFeatureCollection renders records as features, in the given order.
func ToFeatureCollection(records []model.AreaDensityRecord) geojson.FeatureCollection {
	features := make([]geojson.Feature, 0, len(records))
	for _, rec := range records {
		features = append(features, ToFeature(rec))
	}
	return geojson.FeatureCollection{Features: features}
}

// CountsFromFeature reads the dwelling counts and the population back from the properties
// of a feature made by ToFeature, also after a JSON round trip.
func CountsFromFeature(f geojson.Feature) (model.DwellingInfo, int, error) {
	info, ok := f.Properties[KeyDwellingInfo].(map[string]interface{})
	if !ok {
		return model.DwellingInfo{}, 0, fmt.Errorf("feature has no %s object", KeyDwellingInfo)
	}
	total, err := integer(info, KeyTotalDwellings)
	if err != nil {
		return model.DwellingInfo{}, 0, err
	}
	detached, err := integer(info, KeyDetachedOrSemi)
	if err != nil {
		return model.DwellingInfo{}, 0, err
	}
	population, err := integer(f.Properties, KeyPopulation)
	if err != nil {
		return model.DwellingInfo{}, 0, err
	}
	return model.DwellingInfo{TotalDwellings: total, DetachedOrSemi: detached}, population, nil
}

func integer(props map[string]interface{}, key string) (int, error) {
	switch v := props[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("property %s is not a whole number: %v", key, v)
		}
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("property %s is not a whole number: %w", key, err)
		}
		return int(i), nil
	case nil:
		return 0, fmt.Errorf("feature has no property %s", key)
	default:
		return 0, fmt.Errorf("unexpected type for property %s: %T", key, v)
	}
}
