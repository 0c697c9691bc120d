// Package boundary fetches MSOA boundary polygons from an ArcGIS feature service.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-spatial/geom"
	"github.com/perimeterx/marshmallow"

	"github.com/homesgap/density/geomhelp"
	"github.com/homesgap/density/model"
)

// DefaultURL is the ONS layer of 2001 MSOA boundaries, full resolution, clipped to the coastline.
const DefaultURL = "https://services1.arcgis.com/ESMARspQHYMw9BZ9/arcgis/rest/services/MSOA_Dec_2001_Boundaries_EW_BFC_2022/FeatureServer/0"

// DefaultCodeField is the attribute holding the MSOA code in DefaultURL.
const DefaultCodeField = "MSOA01CD"

// BritishNationalGrid is the spatial reference boundaries are requested in.
const BritishNationalGrid = 27700

var validCode = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ArcGIS is a BoundarySource backed by the query endpoint of a feature service layer.
// Responses are kept in a cache directory, one file per area, when one is configured.
type ArcGIS struct {
	baseURL    string
	codeField  string
	cacheDir   string
	retryCount int
	client     *http.Client
}

// NewArcGIS returns a client for the layer at baseURL. An empty cacheDir disables the cache.
func NewArcGIS(baseURL, codeField, cacheDir string, timeout time.Duration, retryCount int) *ArcGIS {
	return &ArcGIS{
		baseURL:    strings.TrimRight(baseURL, "/"),
		codeField:  codeField,
		cacheDir:   cacheDir,
		retryCount: retryCount,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type serviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type queryFeature struct {
	Attributes map[string]interface{} `json:"attributes"`
	Geometry   struct {
		Rings [][][]float64 `json:"rings"`
	} `json:"geometry"`
}

// queryResponse holds the parts of a query response that are used. The spatial reference
// is picked from the remaining fields.
type queryResponse struct {
	Features []queryFeature `json:"features"`
	Error    *serviceError  `json:"error"`
}

// FetchBoundary returns the boundary of an area in British National Grid coordinates.
func (a *ArcGIS) FetchBoundary(ctx context.Context, code string) (geom.Polygon, error) {
	if !validCode.MatchString(code) {
		return nil, fmt.Errorf("invalid area code %q", code)
	}
	data, err := a.cached(code)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data, err = a.fetch(ctx, code)
		if err != nil {
			return nil, err
		}
	}
	rings, err := decodeRings(data)
	if err != nil {
		return nil, fmt.Errorf("boundary of %s: %w", code, err)
	}
	if rings == nil {
		return nil, &model.MissingDataError{Source: "boundary", Code: code}
	}
	if err = a.store(code, data); err != nil {
		log.Printf("could not cache boundary of %s: %s", code, err)
	}
	return polygonFromRings(code, rings), nil
}

func (a *ArcGIS) queryURL(code string) string {
	params := url.Values{}
	params.Set("where", fmt.Sprintf("%s = '%s'", a.codeField, code))
	params.Set("outFields", "*")
	params.Set("outSR", fmt.Sprint(BritishNationalGrid))
	params.Set("f", "json")
	return a.baseURL + "/query?" + params.Encode()
}

func (a *ArcGIS) cachePath(code string) string {
	return filepath.Join(a.cacheDir, code+".json")
}

func (a *ArcGIS) cached(code string) ([]byte, error) {
	if a.cacheDir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.cachePath(code))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (a *ArcGIS) store(code string, data []byte) error {
	if a.cacheDir == "" {
		return nil
	}
	if _, err := os.Stat(a.cachePath(code)); err == nil {
		return nil
	}
	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(a.cachePath(code), data, 0o644) //nolint:gosec
}

func (a *ArcGIS) fetch(ctx context.Context, code string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= a.retryCount; attempt++ {
		if attempt > 0 {
			// exponential backoff: 100ms, 200ms, 400ms
			backoff := time.Duration(100*(1<<uint(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.queryURL(code), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("failed to close boundary response body: %v", closeErr)
		}
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("boundary query failed with status %d", resp.StatusCode)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("boundary of %s not fetched after %d attempts: %w", code, a.retryCount+1, lastErr)
}

// decodeRings returns the rings of the first feature, nil if there is none.
func decodeRings(data []byte) ([][][2]float64, error) {
	var resp queryResponse
	rest, err := marshmallow.Unmarshal(data, &resp, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return nil, fmt.Errorf("could not decode query response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("service error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if err = checkSpatialReference(rest["spatialReference"]); err != nil {
		return nil, err
	}
	if len(resp.Features) == 0 || len(resp.Features[0].Geometry.Rings) == 0 {
		return nil, nil
	}
	raw := resp.Features[0].Geometry.Rings
	rings := make([][][2]float64, len(raw))
	for i, ring := range raw {
		rings[i] = make([][2]float64, len(ring))
		for j, pt := range ring {
			if len(pt) < 2 {
				return nil, fmt.Errorf("ring %d vertex %d has %d coordinates", i, j, len(pt))
			}
			rings[i][j] = [2]float64{pt[0], pt[1]}
		}
	}
	return rings, nil
}

func checkSpatialReference(raw interface{}) error {
	if raw == nil {
		return nil
	}
	sr, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected spatialReference: %v", raw)
	}
	for _, key := range []string{"latestWkid", "wkid"} {
		if wkid, ok := sr[key].(float64); ok {
			if int(wkid) != BritishNationalGrid {
				return fmt.Errorf("boundary is in EPSG:%d, expected EPSG:%d", int(wkid), BritishNationalGrid)
			}
			return nil
		}
	}
	return nil
}

// polygonFromRings takes the first outer ring and the holes that follow it. ArcGIS orders
// outer rings clockwise and holes counterclockwise. Further outer rings are dropped.
func polygonFromRings(code string, rings [][][2]float64) geom.Polygon {
	polygon := geom.Polygon{rings[0]}
	dropped := 0
	for _, ring := range rings[1:] {
		if geomhelp.IsClockwise(ring) {
			dropped++
			continue
		}
		if dropped == 0 {
			polygon = append(polygon, ring)
		}
	}
	if dropped > 0 {
		log.Printf("boundary of %s has %d more parts, only the first is used", code, dropped)
	}
	return polygon
}
