package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func withSources(cfg *Config) *Config {
	cfg.Sources.Zoomstack = "zoomstack.gpkg"
	cfg.Sources.Dwellings = "dwellings.csv"
	cfg.Sources.Population = "population.csv"
	cfg.Sources.Names = "names.csv"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"national_parks", "greenspace", "woodland"}, cfg.Sources.ExclusionLayers)
	assert.Equal(t, "local_buildings", cfg.Sources.BuildingLayer)
	assert.Equal(t, "MSOA01CD", cfg.Boundary.CodeField)
	assert.Equal(t, 30*time.Second, cfg.Boundary.Timeout)
	assert.Equal(t, 3, cfg.Boundary.RetryCount)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 1000, cfg.Output.PageSize)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 50.8225, cfg.Server.Latitude)
	assert.Equal(t, -0.1372, cfg.Server.Longitude)
	assert.Equal(t, 12, cfg.Server.Zoom)

	// the sources have no defaults
	require.Error(t, cfg.Validate())
	require.NoError(t, withSources(cfg).Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "density.yaml", `
sources:
  zoomstack: /data/OS_Open_Zoomstack.gpkg
  dwellings: /data/dwellings.csv
  population: /data/population.csv
  names: /data/names.csv
  exclusionLayers: [greenspace]
boundary:
  timeout: 5s
  cacheDir: /tmp/boundaries
model:
  sieveResolution: 2.5
cache:
  driver: sqlite
  path: /tmp/records.db
workers: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/data/OS_Open_Zoomstack.gpkg", cfg.Sources.Zoomstack)
	assert.Equal(t, []string{"greenspace"}, cfg.Sources.ExclusionLayers)
	assert.Equal(t, "local_buildings", cfg.Sources.BuildingLayer)
	assert.Equal(t, 5*time.Second, cfg.Boundary.Timeout)
	assert.Equal(t, "/tmp/boundaries", cfg.Boundary.CacheDir)
	assert.Equal(t, 2.5, cfg.Model.SieveResolution)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "/tmp/records.db", cfg.Cache.Path)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"/data/OS_Open_Zoomstack.gpkg", "/data/dwellings.csv", "/data/population.csv", "/data/names.csv"}, cfg.SourcePaths())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "sources: [not, a, map]"))
	require.Error(t, err)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	var tests = map[int]struct {
		modify func(*Config)
		valid  bool
	}{
		0:  {modify: func(*Config) {}, valid: true},
		1:  {modify: func(c *Config) { c.Cache.Driver = "redis" }},
		2:  {modify: func(c *Config) { c.Cache.Driver = "fs" }},
		3:  {modify: func(c *Config) { c.Cache.Driver = "fs"; c.Cache.Dir = "/tmp/cache" }, valid: true},
		4:  {modify: func(c *Config) { c.Cache.Driver = "postgres" }},
		5:  {modify: func(c *Config) { c.Cache.Driver = "postgres"; c.Cache.DSN = "postgres://localhost/density" }, valid: true},
		6:  {modify: func(c *Config) { c.Model.SieveResolution = -1 }},
		7:  {modify: func(c *Config) { c.Sources.ExclusionLayers = nil }},
		8:  {modify: func(c *Config) { c.Sources.ExclusionLayers = []string{"greenspace", ""} }},
		9:  {modify: func(c *Config) { c.Output.PageSize = 0 }},
		10: {modify: func(c *Config) { c.Server.Latitude = 91 }},
		11: {modify: func(c *Config) { c.Boundary.URL = "not a url" }},
		12: {modify: func(c *Config) { c.Workers = -1 }},
		13: {modify: func(c *Config) { c.Cache.S3.Endpoint = "http://localhost:9000" }, valid: true},
	}
	for k, test := range tests {
		cfg, err := Load("")
		require.NoError(t, err)
		withSources(cfg)
		test.modify(cfg)
		if test.valid {
			assert.NoError(t, cfg.Validate(), "test %d", k)
		} else {
			assert.Error(t, cfg.Validate(), "test %d", k)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "DENSITY_CONFIG_TEST_SOURCE"
	t.Cleanup(func() { os.Unsetenv(key) })
	env := writeFile(t, ".env", key+"=/data/zoomstack.gpkg\n")

	_, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "/data/zoomstack.gpkg", os.Getenv(key))
}
