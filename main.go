package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/muesli/reflow/padding"
	"github.com/urfave/cli/v2"

	"github.com/homesgap/density/area"
	"github.com/homesgap/density/boundary"
	"github.com/homesgap/density/cache"
	"github.com/homesgap/density/census"
	"github.com/homesgap/density/config"
	"github.com/homesgap/density/density"
	"github.com/homesgap/density/gpkg"
	"github.com/homesgap/density/metrics"
	"github.com/homesgap/density/model"
	"github.com/homesgap/density/processing"
	"github.com/homesgap/density/server"
)

const CONFIG string = `config`
const ZOOMSTACK string = `zoomstack`
const DWELLINGS string = `dwellings`
const POPULATION string = `population`
const NAMES string = `names`
const BOUNDARYCACHE string = `boundaryCache`
const SIEVERESOLUTION string = `sieveResolution`
const WORKERS string = `workers`
const CACHEDRIVER string = `cacheDriver`
const CACHEDIR string = `cacheDir`
const CACHEPATH string = `cachePath`
const CACHEDSN string = `cacheDsn`
const CACHEBUCKET string = `cacheBucket`
const TARGET string = `targetGpkg`
const GEOJSON string = `geojson`
const OVERWRITE string = `overwrite`
const PAGESIZE string = `pagesize`
const CODE string = `code`
const ADDRESS string = `address`

// how many areas the batch summary lists
const rankedLines = 10

func stringFlag(name, alias, usage string) *cli.StringFlag {
	f := &cli.StringFlag{
		Name:    name,
		Usage:   usage,
		EnvVars: []string{strcase.ToScreamingSnake(name)},
	}
	if alias != "" {
		f.Aliases = []string{alias}
	}
	return f
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "density"
	app.Usage = "Residential density and housing capacity per MSOA"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		stringFlag(CONFIG, "c", "YAML config file"),
		stringFlag(ZOOMSTACK, "z", "OS Open Zoomstack GPKG with the exclusion and building layers"),
		stringFlag(DWELLINGS, "d", "Census CSV of dwelling type counts per MSOA"),
		stringFlag(POPULATION, "p", "Census CSV of population counts per MSOA"),
		stringFlag(NAMES, "n", "CSV of MSOA names"),
		stringFlag(BOUNDARYCACHE, "", "Directory the fetched MSOA boundaries are kept in"),
		&cli.Float64Flag{
			Name:    SIEVERESOLUTION,
			Usage:   "Drop parts and holes of the usable land smaller than this resolution squared, in metres",
			EnvVars: []string{strcase.ToScreamingSnake(SIEVERESOLUTION)},
		},
		&cli.IntFlag{
			Name:    WORKERS,
			Aliases: []string{"w"},
			Usage:   "Number of MSOAs computed at the same time, 0 is one per CPU",
			EnvVars: []string{strcase.ToScreamingSnake(WORKERS)},
		},
		stringFlag(CACHEDRIVER, "", "Record cache: memory, fs, sqlite, postgres or s3"),
		stringFlag(CACHEDIR, "", "Directory of the fs record cache"),
		stringFlag(CACHEPATH, "", "Database file of the sqlite record cache"),
		stringFlag(CACHEDSN, "", "Connection string of the postgres record cache"),
		stringFlag(CACHEBUCKET, "", "Bucket of the s3 record cache"),
	}

	app.Commands = []*cli.Command{
		{
			Name:  "compute",
			Usage: "Compute all MSOAs of the dwellings CSV and write the results",
			Flags: []cli.Flag{
				stringFlag(TARGET, "t", "Target GPKG for the records"),
				stringFlag(GEOJSON, "g", "Target GeoJSON file for the records, in WGS84"),
				&cli.BoolFlag{
					Name:    OVERWRITE,
					Aliases: []string{"o"},
					Usage:   "Overwrite a target GPKG if it exists",
					EnvVars: []string{strcase.ToScreamingSnake(OVERWRITE)},
				},
				&cli.IntFlag{
					Name:    PAGESIZE,
					Usage:   "Page Size, how many records are written per transaction to the target GPKG",
					EnvVars: []string{strcase.ToScreamingSnake(PAGESIZE)},
				},
			},
			Action: compute,
		},
		{
			Name:  "show",
			Usage: "Compute one MSOA and print its density profile",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     CODE,
					Usage:    "MSOA code, e.g. E02003491",
					Required: true,
				},
			},
			Action: show,
		},
		{
			Name:  "serve",
			Usage: "Compute all MSOAs and serve them on a map",
			Flags: []cli.Flag{
				stringFlag(ADDRESS, "a", "Address to listen on"),
			},
			Action: serve,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the config file and lays the flags that are set over it
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(CONFIG))
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		ZOOMSTACK:     &cfg.Sources.Zoomstack,
		DWELLINGS:     &cfg.Sources.Dwellings,
		POPULATION:    &cfg.Sources.Population,
		NAMES:         &cfg.Sources.Names,
		BOUNDARYCACHE: &cfg.Boundary.CacheDir,
		CACHEDRIVER:   &cfg.Cache.Driver,
		CACHEDIR:      &cfg.Cache.Dir,
		CACHEPATH:     &cfg.Cache.Path,
		CACHEDSN:      &cfg.Cache.DSN,
		CACHEBUCKET:   &cfg.Cache.S3.Bucket,
		TARGET:        &cfg.Output.GeoPackage,
		GEOJSON:       &cfg.Output.GeoJSON,
		ADDRESS:       &cfg.Server.Address,
	}
	for name, value := range overrides {
		if c.IsSet(name) {
			*value = c.String(name)
		}
	}
	if c.IsSet(SIEVERESOLUTION) {
		cfg.Model.SieveResolution = c.Float64(SIEVERESOLUTION)
	}
	if c.IsSet(WORKERS) {
		cfg.Workers = c.Int(WORKERS)
	}
	if c.IsSet(OVERWRITE) {
		cfg.Output.Overwrite = c.Bool(OVERWRITE)
	}
	if c.IsSet(PAGESIZE) {
		cfg.Output.PageSize = c.Int(PAGESIZE)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// run holds what every command needs: the sources, the builder and the cache
type run struct {
	cfg     *config.Config
	census  *census.Census
	layers  *gpkg.LayerSource
	builder *area.Builder
	cache   *cache.Cache
	version string
	metrics *metrics.Metrics
}

func setup(ctx context.Context, cfg *config.Config) (*run, error) {
	counts, err := census.Load(cfg.Sources.Dwellings, cfg.Sources.Population, cfg.Sources.Names)
	if err != nil {
		return nil, err
	}
	layers, err := gpkg.OpenLayerSource(cfg.Sources.Zoomstack)
	if err != nil {
		return nil, err
	}
	zoomstack := gpkg.Zoomstack{
		Source:          layers,
		ExclusionTables: cfg.Sources.ExclusionLayers,
		BuildingTable:   cfg.Sources.BuildingLayer,
	}
	boundaries := boundary.NewArcGIS(cfg.Boundary.URL, cfg.Boundary.CodeField, cfg.Boundary.CacheDir,
		cfg.Boundary.Timeout, cfg.Boundary.RetryCount)

	version, err := cache.SourceVersion(settings(cfg), cfg.SourcePaths()...)
	if err != nil {
		layers.Close()
		return nil, err
	}
	records, err := cache.Open(ctx, cache.Options{
		Driver: cache.Driver(cfg.Cache.Driver),
		Dir:    cfg.Cache.Dir,
		Path:   cfg.Cache.Path,
		DSN:    cfg.Cache.DSN,
		S3: cache.S3Config{
			Region:    cfg.Cache.S3.Region,
			Bucket:    cfg.Cache.S3.Bucket,
			Prefix:    cfg.Cache.S3.Prefix,
			Endpoint:  cfg.Cache.S3.Endpoint,
			PathStyle: cfg.Cache.S3.PathStyle,
		},
	})
	if err != nil {
		layers.Close()
		return nil, err
	}

	builder := area.NewBuilder(area.Sources{
		Boundaries: boundaries,
		Exclusions: zoomstack,
		Buildings:  zoomstack,
		Counts:     counts,
		Names:      counts,
	}, cfg.Model.SieveResolution)

	return &run{cfg: cfg, census: counts, layers: layers, builder: builder, cache: records, version: version, metrics: metrics.New()}, nil
}

// settings are the config values a record depends on besides the source files
func settings(cfg *config.Config) string {
	return fmt.Sprintf("boundary=%s#%s exclusions=%s buildings=%s sieve=%g",
		cfg.Boundary.URL, cfg.Boundary.CodeField, strings.Join(cfg.Sources.ExclusionLayers, ","),
		cfg.Sources.BuildingLayer, cfg.Model.SieveResolution)
}

func (r *run) Close() {
	if err := r.cache.Close(); err != nil {
		log.Printf("could not close the record cache: %s", err)
	}
	if err := r.layers.Close(); err != nil {
		log.Printf("could not close the source GeoPackage: %s", err)
	}
}

func (r *run) process(ctx context.Context, codes []string, targets []processing.Target) ([]processing.Result, error) {
	return processing.ProcessAreas(ctx, codes, r.builder, targets, processing.Options{
		Workers:  r.cfg.Workers,
		Cache:    r.cache,
		Version:  r.version,
		Observer: r.metrics,
	})
}

func start(c *cli.Context) (*run, context.Context, context.CancelFunc, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	r, err := setup(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return r, ctx, cancel, nil
}

func logFailures(results []processing.Result) {
	for _, f := range processing.Failures(results) {
		log.Printf("  failed %s: %s", f.Code, f.Err)
	}
}

func compute(c *cli.Context) error {
	r, ctx, cancel, err := start(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer r.Close()

	var targets []processing.Target
	if r.cfg.Output.GeoPackage != "" {
		target, err := gpkg.NewRecordTarget(r.cfg.Output.GeoPackage, r.cfg.Output.Overwrite, r.cfg.Output.PageSize)
		if err != nil {
			return err
		}
		defer target.Close()
		targets = append(targets, target)
	}
	if r.cfg.Output.GeoJSON != "" {
		targets = append(targets, processing.GeoJSONTarget{Path: r.cfg.Output.GeoJSON})
	}

	log.Println("=== start computing ===")
	results, err := r.process(ctx, r.census.Codes(), targets)
	logFailures(results)
	if err != nil {
		return err
	}
	log.Println("=== done computing ===")

	summary := density.Summarize(processing.Records(results))
	r.metrics.SetNewHomes(summary.TotalNewHomes)
	for i, ranked := range summary.Ranked {
		if i == rankedLines {
			break
		}
		fmt.Printf("%s%s%8d\n", padding.String(ranked.Identity.Code, 12),
			padding.String(ranked.Identity.Name, 40), density.RoundHomes(ranked.NewHomes))
	}
	for _, identity := range summary.Unavailable {
		fmt.Printf("%s%sno model available\n", padding.String(identity.Code, 12), padding.String(identity.Name, 40))
	}
	fmt.Printf("Total new homes: %d\n", density.RoundHomes(summary.TotalNewHomes))
	return nil
}

func show(c *cli.Context) error {
	r, ctx, cancel, err := start(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer r.Close()

	results, err := r.process(ctx, []string{c.String(CODE)}, nil)
	if err != nil {
		return err
	}
	if len(results) != 1 {
		return fmt.Errorf("no result for %s", c.String(CODE))
	}
	if results[0].Err != nil {
		return results[0].Err
	}
	err = density.Describe(os.Stdout, results[0].Record)
	var precondition *model.DivisionPreconditionError
	if errors.As(err, &precondition) {
		fmt.Printf("MSOA: %s %s\nno model available: %s\n", results[0].Record.Identity.Code, results[0].Record.Identity.Name, err)
		return nil
	}
	return err
}

func serve(c *cli.Context) error {
	r, ctx, cancel, err := start(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer r.Close()

	log.Println("=== loading records ===")
	results, err := r.process(ctx, r.census.Codes(), nil)
	logFailures(results)
	if err != nil {
		return err
	}
	records := processing.Records(results)
	r.metrics.SetNewHomes(density.Summarize(records).TotalNewHomes)

	s, err := server.New(records, r.metrics, server.MapOptions{
		Title:     r.cfg.Server.Title,
		Latitude:  r.cfg.Server.Latitude,
		Longitude: r.cfg.Server.Longitude,
		Zoom:      r.cfg.Server.Zoom,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              r.cfg.Server.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("could not shut down: %s", err)
		}
	}()

	log.Printf("=== serving %d areas on %s ===", len(records), r.cfg.Server.Address)
	if err = httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
