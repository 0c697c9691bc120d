package cache

import (
	"context"
	"fmt"
)

// Driver names a cache backend.
type Driver string

const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverSQLite     Driver = "sqlite"
	DriverPostgres   Driver = "postgres"
	DriverS3         Driver = "s3"
)

// Options selects and configures a backend. Only the fields of the selected driver are
// used.
type Options struct {
	Driver Driver
	// Dir is the directory of the fs driver
	Dir string
	// Path is the database file of the sqlite driver
	Path string
	// DSN is the connection string of the postgres driver
	DSN string
	S3  S3Config
}

// Open creates the cache the options describe. An empty driver is the memory driver.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	var backend Backend
	var err error
	switch opts.Driver {
	case DriverMemory, "":
		backend = NewMemory()
	case DriverFilesystem:
		backend, err = NewFilesystem(opts.Dir)
	case DriverSQLite:
		backend, err = NewSQLite(ctx, opts.Path)
	case DriverPostgres:
		backend, err = NewPostgres(ctx, opts.DSN)
	case DriverS3:
		backend, err = NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown cache driver %s", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return New(backend), nil
}
