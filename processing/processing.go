// Package processing takes care of the logistics around computing many areas and writing
// their records to targets. Not the computation of a record itself.
package processing

import (
	"context"
	"errors"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/homesgap/density/model"
)

// Result is the outcome of one area. Err is set when the area failed, Record otherwise.
type Result struct {
	Code   string
	Record model.AreaDensityRecord
	Cached bool
	Err    error
}

// Options tune a run. The zero value uses a worker per CPU and no cache.
type Options struct {
	Workers int
	Cache   Cache
	// Version of the source data, the cache key next to the area code
	Version  string
	Observer Observer
}

type job struct {
	index int
	code  string
}

type indexedResult struct {
	index int
	Result
}

// readCodes feeds the area codes to the workers until all are handed out or ctx is done
func readCodes(ctx context.Context, codes []string, jobs chan<- job) {
	defer close(jobs)
	for i, code := range codes {
		select {
		case jobs <- job{index: i, code: code}:
		case <-ctx.Done():
			return
		}
	}
}

// processAreas computes the areas it receives, one at a time
func processAreas(ctx context.Context, jobs <-chan job, results chan<- indexedResult, builder Builder, opts Options) {
	for j := range jobs {
		start := time.Now()
		result := processArea(ctx, j.code, builder, opts)
		if opts.Observer != nil {
			opts.Observer.ObserveArea(result, time.Since(start))
		}
		results <- indexedResult{index: j.index, Result: result}
	}
}

// processArea takes the record from the cache or builds and caches it. Cache failures
// are logged, they never fail an area.
func processArea(ctx context.Context, code string, builder Builder, opts Options) Result {
	if opts.Cache != nil {
		rec, ok, err := opts.Cache.Get(ctx, code, opts.Version)
		if err != nil {
			log.Printf("cache lookup of %s failed: %s", code, err)
		}
		if ok {
			return Result{Code: code, Record: rec, Cached: true}
		}
	}
	rec, err := builder.Build(ctx, code)
	if err != nil {
		return Result{Code: code, Err: err}
	}
	if opts.Cache != nil {
		if err = opts.Cache.Put(ctx, opts.Version, rec); err != nil {
			log.Printf("caching %s failed: %s", code, err)
		}
	}
	return Result{Code: code, Record: rec}
}

// writeRecordsToTargets hands every record to every target, each target reading on its
// own goroutine
func writeRecordsToTargets(records <-chan model.AreaDensityRecord, targets []Target) error {
	targetChannels := make([]chan model.AreaDensityRecord, len(targets))
	errs := make([]error, len(targets))
	wg := sync.WaitGroup{}

	// create a channel and start a goroutine per target
	for i, target := range targets {
		targetChannel := make(chan model.AreaDensityRecord)
		targetChannels[i] = targetChannel
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			errs[i] = target.WriteRecords(targetChannel)
		}(i, target)
	}

	for rec := range records {
		for _, channel := range targetChannels {
			channel <- rec
		}
	}

	// close the channels, the targets will do their last writing
	for _, targetChannel := range targetChannels {
		close(targetChannel)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// ProcessAreas computes the records of the given areas concurrently and writes the
// successful ones to all targets. A failing area does not stop the run. The results are
// in the order of codes; when ctx is cancelled the areas not yet started have no result.
// The returned error reports cancellation and target failures, not area failures.
func ProcessAreas(ctx context.Context, codes []string, builder Builder, targets []Target, opts Options) ([]Result, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	jobs := make(chan job)
	results := make(chan indexedResult)
	records := make(chan model.AreaDensityRecord)

	var targetErr error
	written := make(chan struct{})
	go func() {
		defer close(written)
		targetErr = writeRecordsToTargets(records, targets)
	}()

	wg := sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processAreas(ctx, jobs, results, builder, opts)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go readCodes(ctx, codes, jobs)

	collected := make([]*Result, len(codes))
	for r := range results {
		result := r.Result
		collected[r.index] = &result
		if result.Err == nil {
			records <- result.Record
		}
	}
	close(records)
	<-written

	ordered := make([]Result, 0, len(codes))
	var cachedCount, failedCount int
	for _, r := range collected {
		if r == nil {
			continue
		}
		if r.Cached {
			cachedCount++
		}
		if r.Err != nil {
			failedCount++
		}
		ordered = append(ordered, *r)
	}

	log.Printf("    total areas: %d", len(codes))
	log.Printf("         cached: %d", cachedCount)
	log.Printf("       computed: %d", len(ordered)-cachedCount-failedCount)
	log.Printf("         failed: %d", failedCount)
	if skipped := len(codes) - len(ordered); skipped > 0 {
		log.Printf("        skipped: %d", skipped)
	}
	return ordered, errors.Join(ctx.Err(), targetErr)
}

// Records returns the records of the successful results.
func Records(results []Result) []model.AreaDensityRecord {
	records := make([]model.AreaDensityRecord, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			records = append(records, r.Record)
		}
	}
	return records
}

// Failures returns the failed results.
func Failures(results []Result) []Result {
	var failures []Result
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r)
		}
	}
	return failures
}
