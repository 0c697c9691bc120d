// Package cache stores computed area records keyed by area code. Every entry carries the
// version of the source data it was computed from; an entry of another version is a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"

	"github.com/homesgap/density/geomhelp"
	"github.com/homesgap/density/model"
)

// Backend stores opaque entries by key.
type Backend interface {
	// Load returns false when there is no entry for key.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, data []byte) error
	Close() error
}

// Cache is a record cache on top of a Backend. It is safe for concurrent use when the
// backend is.
type Cache struct {
	backend Backend
}

// New returns a cache storing its entries in backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

type entry struct {
	Version string                  `json:"version"`
	Record  model.AreaDensityRecord `json:"record"`
	// WKB, empty when there is no usable land
	Usable []byte `json:"usable,omitempty"`
}

func encode(version string, rec model.AreaDensityRecord) ([]byte, error) {
	e := entry{Version: version, Record: rec}
	if len(rec.Usable) > 0 {
		usable, err := wkb.EncodeBytes(rec.Usable)
		if err != nil {
			return nil, fmt.Errorf("could not encode usable polygon of %s: %w", rec.Identity.Code, err)
		}
		e.Usable = usable
	}
	return json.Marshal(e)
}

func decode(data []byte) (entry, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	if len(e.Usable) == 0 {
		return e, nil
	}
	g, err := wkb.DecodeBytes(e.Usable)
	if err != nil {
		return e, err
	}
	var polygons geom.MultiPolygon
	switch usable := g.(type) {
	case geom.MultiPolygon:
		polygons = usable
	case geom.Polygon:
		polygons = geom.MultiPolygon{usable}
	default:
		return e, fmt.Errorf("unexpected usable geometry %T", g)
	}
	e.Record.Usable = make(geom.MultiPolygon, 0, len(polygons))
	for _, p := range polygons {
		e.Record.Usable = append(e.Record.Usable, geomhelp.ClosedPolygon(p))
	}
	return e, nil
}

// Get returns the cached record of code if it was stored under version. Unreadable
// entries are misses.
func (c *Cache) Get(ctx context.Context, code, version string) (model.AreaDensityRecord, bool, error) {
	data, ok, err := c.backend.Load(ctx, code)
	if err != nil {
		return model.AreaDensityRecord{}, false, fmt.Errorf("could not load cache entry of %s: %w", code, err)
	}
	if !ok {
		return model.AreaDensityRecord{}, false, nil
	}
	e, err := decode(data)
	if err != nil {
		log.Printf("ignoring unreadable cache entry of %s: %s", code, err)
		return model.AreaDensityRecord{}, false, nil
	}
	if e.Version != version || e.Record.Identity.Code != code {
		return model.AreaDensityRecord{}, false, nil
	}
	return e.Record, true, nil
}

// Put stores rec under version, replacing any earlier entry of the same area.
func (c *Cache) Put(ctx context.Context, version string, rec model.AreaDensityRecord) error {
	data, err := encode(version, rec)
	if err != nil {
		return err
	}
	if err = c.backend.Store(ctx, rec.Identity.Code, data); err != nil {
		return fmt.Errorf("could not store cache entry of %s: %w", rec.Identity.Code, err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.backend.Close()
}

// SourceVersion derives a version from the settings that shape a record and from the
// name, size and modification time of the given source files. Empty paths are skipped,
// a missing file is an error.
func SourceVersion(settings string, paths ...string) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", settings)
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return "", fmt.Errorf("could not version source: %w", err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", filepath.Base(p), info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
