// Package server serves the density records as GeoJSON and as an interactive map.
package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/homesgap/density/area"
	"github.com/homesgap/density/density"
	"github.com/homesgap/density/metrics"
	"github.com/homesgap/density/model"
)

//go:embed templates/map.html
var templates embed.FS

// Field is a feature property shown in the map popup, under its alias.
type Field struct {
	Key   string `json:"key"`
	Alias string `json:"alias"`
}

// PopupFields lists the popup rows, in order.
var PopupFields = []Field{
	{Key: area.KeyCode, Alias: "MSOA Code"},
	{Key: area.KeyName, Alias: "Area name"},
	{Key: area.KeyPopulation, Alias: "Population"},
	{Key: density.KeyArea, Alias: "Built Up Area"},
	{Key: density.KeyBuildingCoverage, Alias: "Building Coverage (%)"},
	{Key: density.KeyDwellings, Alias: "Number of Dwellings"},
	{Key: density.KeyDetachedOrSemiPercent, Alias: "Of which Detached or Semi-Detached (%)"},
	{Key: density.KeyPopulationDensity, Alias: "Population Density"},
	{Key: density.KeyOccupation, Alias: "Occupation"},
	{Key: density.KeyDwellingDensity, Alias: "Dwelling Density"},
	{Key: density.KeyTargetDensity, Alias: "Possible Density"},
	{Key: density.KeyNewHomes, Alias: "New Homes Produced"},
}

// MapOptions position the initial map view.
type MapOptions struct {
	Title     string
	Latitude  float64
	Longitude float64
	Zoom      int
}

// DefaultMapOptions centre the map on Brighton.
var DefaultMapOptions = MapOptions{Title: "Residential density", Latitude: 50.8225, Longitude: -0.1372, Zoom: 12}

const geoJSONContentType = "application/geo+json"

// Server holds a fixed set of records. Records are rendered on request and never change
// while serving.
type Server struct {
	records []model.AreaDensityRecord
	byCode  map[string]model.AreaDensityRecord
	metrics *metrics.Metrics
	page    []byte
}

// New prepares a server for the records. m may be nil, then there is no /metrics.
func New(records []model.AreaDensityRecord, m *metrics.Metrics, opts MapOptions) (*Server, error) {
	sorted := make([]model.AreaDensityRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Identity.Code < sorted[j].Identity.Code })

	byCode := make(map[string]model.AreaDensityRecord, len(sorted))
	for _, rec := range sorted {
		byCode[rec.Identity.Code] = rec
	}

	page, err := renderPage(opts)
	if err != nil {
		return nil, err
	}
	return &Server{records: sorted, byCode: byCode, metrics: m, page: page}, nil
}

func renderPage(opts MapOptions) ([]byte, error) {
	tmpl, err := template.ParseFS(templates, "templates/map.html")
	if err != nil {
		return nil, fmt.Errorf("could not parse map template: %w", err)
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		MapOptions
		Fields      []Field
		Unavailable string
		DataURL     string
	}{opts, PopupFields, area.ModelUnavailable, "/api/areas"})
	if err != nil {
		return nil, fmt.Errorf("could not render map page: %w", err)
	}
	return buf.Bytes(), nil
}

// Logger logs every request and counts it by route
func (s *Server) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		log.Printf("[%s] %s %s %d %v %s", c.Request.Method, path, c.ClientIP(), status, time.Since(start), c.Errors.String())
		if s.metrics != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.ObserveRequest(route, status)
		}
	}
}

func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// Router sets up the routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.Logger(), cors)

	r.GET("/", s.index)
	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/areas", s.areas)
		api.GET("/areas/:code", s.area)
	}
	return r
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", s.page)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"areas":  len(s.records),
	})
}

func (s *Server) areas(c *gin.Context) {
	data, err := json.Marshal(area.ToFeatureCollection(s.records))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode areas"})
		return
	}
	c.Data(http.StatusOK, geoJSONContentType, data)
}

func (s *Server) area(c *gin.Context) {
	code := c.Param("code")
	rec, ok := s.byCode[code]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no area %s", code)})
		return
	}
	data, err := json.Marshal(area.ToFeature(rec))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode area"})
		return
	}
	c.Data(http.StatusOK, geoJSONContentType, data)
}
