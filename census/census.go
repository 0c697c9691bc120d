// Package census reads the 2021 census extracts the density model needs: dwelling counts
// by accommodation type, usual residents and area names, all keyed by MSOA code.
package census

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/homesgap/density/model"
)

// Column layout of the census observation extracts:
// area code, area name, category code, category name, observation
const (
	colCode        = 0
	colCategory    = 2
	colObservation = 4
	observationLen = 5

	colNameCode = 0
	colName     = 3
	namesLen    = 4
)

// DetachedOrSemiCategories are the accommodation type codes counted as detached or
// semi-detached houses.
var DetachedOrSemiCategories = map[int]bool{1: true, 2: true}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader
}

type observation struct {
	code     string
	category int
	value    int
}

// readObservations calls f for every data row of an observation extract.
func readObservations(r io.Reader, f func(observation)) error {
	reader := newReader(r)
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("could not read header: %w", err)
	}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line, _ := reader.FieldPos(0)
		if len(record) < observationLen {
			return fmt.Errorf("line %d: expected %d columns, got %d", line, observationLen, len(record))
		}
		category, err := strconv.Atoi(strings.TrimSpace(record[colCategory]))
		if err != nil {
			return fmt.Errorf("line %d: category code: %w", line, err)
		}
		value, err := strconv.Atoi(strings.TrimSpace(record[colObservation]))
		if err != nil {
			return fmt.Errorf("line %d: observation: %w", line, err)
		}
		f(observation{code: strings.TrimSpace(record[colCode]), category: category, value: value})
	}
}

// ReadDwellingTypes sums the dwellings of every area, and those of them that are detached
// or semi-detached.
func ReadDwellingTypes(r io.Reader) (map[string]model.DwellingInfo, error) {
	dwellings := make(map[string]model.DwellingInfo)
	err := readObservations(r, func(o observation) {
		info := dwellings[o.code]
		info.TotalDwellings += o.value
		if DetachedOrSemiCategories[o.category] {
			info.DetachedOrSemi += o.value
		}
		dwellings[o.code] = info
	})
	if err != nil {
		return nil, fmt.Errorf("could not read dwelling types: %w", err)
	}
	return dwellings, nil
}

// ReadPopulation sums the observations of every area over all categories.
func ReadPopulation(r io.Reader) (map[string]int, error) {
	population := make(map[string]int)
	err := readObservations(r, func(o observation) {
		population[o.code] += o.value
	})
	if err != nil {
		return nil, fmt.Errorf("could not read population: %w", err)
	}
	return population, nil
}

// ReadNames reads the area names lookup. Every row is read, rows too short to hold a name
// are skipped. The first occurrence of a code wins.
func ReadNames(r io.Reader) (map[string]string, error) {
	names := make(map[string]string)
	reader := newReader(r)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("could not read names: %w", err)
		}
		if len(record) < namesLen {
			continue
		}
		code := strings.TrimSpace(record[colNameCode])
		if _, ok := names[code]; !ok {
			names[code] = strings.TrimSpace(record[colName])
		}
	}
}

// Codes returns the keys of a per area table, sorted.
func Codes[V any](table map[string]V) []string {
	codes := make([]string, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Census serves counts and names of the areas read from the three extracts.
type Census struct {
	dwellings  map[string]model.DwellingInfo
	population map[string]int
	names      map[string]string
}

// New returns a census over already read tables.
func New(dwellings map[string]model.DwellingInfo, population map[string]int, names map[string]string) *Census {
	return &Census{dwellings: dwellings, population: population, names: names}
}

// Load reads the dwelling types, population and names files.
func Load(dwellingsPath, populationPath, namesPath string) (*Census, error) {
	dwellings, err := readFile(dwellingsPath, ReadDwellingTypes)
	if err != nil {
		return nil, err
	}
	population, err := readFile(populationPath, ReadPopulation)
	if err != nil {
		return nil, err
	}
	names, err := readFile(namesPath, ReadNames)
	if err != nil {
		return nil, err
	}
	return New(dwellings, population, names), nil
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	table, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Codes returns the codes of all areas with dwelling counts, sorted. These are the areas
// a batch computes.
func (c *Census) Codes() []string {
	return Codes(c.dwellings)
}

func (c *Census) FetchDwellingCounts(_ context.Context, code string) (model.DwellingInfo, error) {
	info, ok := c.dwellings[code]
	if !ok {
		return model.DwellingInfo{}, &model.MissingDataError{Source: "dwelling types", Code: code}
	}
	return info, nil
}

func (c *Census) FetchPopulation(_ context.Context, code string) (int, error) {
	population, ok := c.population[code]
	if !ok {
		return 0, &model.MissingDataError{Source: "population", Code: code}
	}
	return population, nil
}

func (c *Census) FetchName(_ context.Context, code string) (string, error) {
	name, ok := c.names[code]
	if !ok {
		return "", &model.MissingDataError{Source: "names", Code: code}
	}
	return name, nil
}
