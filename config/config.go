// Package config holds the settings of the density command. Settings come from struct
// defaults, an optional YAML file and, through the command line flags, the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Sources  Sources  `yaml:"sources"`
	Boundary Boundary `yaml:"boundary"`
	Model    Model    `yaml:"model"`
	Cache    Cache    `yaml:"cache"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	// Workers is the number of areas computed at the same time, 0 is one per CPU
	Workers int `yaml:"workers" validate:"gte=0"`
}

// Sources are the input datasets.
type Sources struct {
	Zoomstack  string `yaml:"zoomstack" validate:"required"`
	Dwellings  string `yaml:"dwellings" validate:"required"`
	Population string `yaml:"population" validate:"required"`
	Names      string `yaml:"names" validate:"required"`
	// ExclusionLayers are subtracted from the boundary in this order
	ExclusionLayers []string `yaml:"exclusionLayers" default:"[\"national_parks\",\"greenspace\",\"woodland\"]" validate:"min=1,dive,required"`
	BuildingLayer   string   `yaml:"buildingLayer" default:"local_buildings" validate:"required"`
}

// Boundary configures the ArcGIS feature service the area boundaries come from.
type Boundary struct {
	URL        string        `yaml:"url" default:"https://services1.arcgis.com/ESMARspQHYMw9BZ9/arcgis/rest/services/MSOA_Dec_2001_Boundaries_EW_BFC_2022/FeatureServer/0" validate:"required,url"`
	CodeField  string        `yaml:"codeField" default:"MSOA01CD" validate:"required"`
	CacheDir   string        `yaml:"cacheDir"`
	Timeout    time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	RetryCount int           `yaml:"retryCount" default:"3" validate:"gte=0"`
}

type Model struct {
	// SieveResolution drops slivers of the usable polygon smaller than its square, in metres
	SieveResolution float64 `yaml:"sieveResolution" validate:"gte=0"`
}

type Cache struct {
	Driver string `yaml:"driver" default:"memory" validate:"oneof=memory fs sqlite postgres s3"`
	Dir    string `yaml:"dir" validate:"required_if=Driver fs"`
	Path   string `yaml:"path" default:"density-cache.db"`
	DSN    string `yaml:"dsn" validate:"required_if=Driver postgres"`
	S3     S3     `yaml:"s3"`
}

// S3 locates the cache bucket. Credentials come from the AWS environment.
type S3 struct {
	Region    string `yaml:"region" default:"eu-west-2"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix" default:"density"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	PathStyle bool   `yaml:"pathStyle"`
}

type Output struct {
	GeoPackage string `yaml:"geopackage"`
	GeoJSON    string `yaml:"geojson"`
	Overwrite  bool   `yaml:"overwrite"`
	PageSize   int    `yaml:"pageSize" default:"1000" validate:"gte=1"`
}

type Server struct {
	Address   string  `yaml:"address" default:":8080" validate:"required"`
	Title     string  `yaml:"title" default:"Residential density"`
	Latitude  float64 `yaml:"latitude" default:"50.8225" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" default:"-0.1372" validate:"gte=-180,lte=180"`
	Zoom      int     `yaml:"zoom" default:"12" validate:"gte=0,lte=19"`
}

// Load loads the env files into the environment, then reads the config file over the
// defaults. Without env files a .env in the working directory is loaded if there is one.
// An empty path gives the defaults. The result is not validated yet, flags may still
// override it.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not load env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("could not set config defaults: %w", err)
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the complete config.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// SourcePaths are the local files whose change invalidates cached records.
func (c *Config) SourcePaths() []string {
	return []string{c.Sources.Zoomstack, c.Sources.Dwellings, c.Sources.Population, c.Sources.Names}
}
