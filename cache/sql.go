package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver "pgx"
	_ "modernc.org/sqlite"             // pure go sqlite driver "sqlite"
)

type dialect struct {
	driver      string
	blobType    string
	timeType    string
	placeholder func(n int) string
}

var (
	sqliteDialect = dialect{
		driver:      "sqlite",
		blobType:    "BLOB",
		timeType:    "TIMESTAMP",
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		driver:      "pgx",
		blobType:    "BYTEA",
		timeType:    "TIMESTAMPTZ",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

// SQL stores entries in the table area_records of a SQLite or Postgres database.
type SQL struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLite opens or creates the SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		path = "density-cache.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	return newSQL(ctx, db, sqliteDialect)
}

// NewPostgres connects to the Postgres database of dsn.
func NewPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQL(ctx, db, postgresDialect)
}

func newSQL(ctx context.Context, db *sql.DB, d dialect) (*SQL, error) {
	s := &SQL{db: db, dialect: d}
	if _, err := db.ExecContext(ctx, s.createSQL()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create area_records table: %w", err)
	}
	return s, nil
}

func (s *SQL) createSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS area_records (
		code TEXT PRIMARY KEY,
		entry %s NOT NULL,
		updated_at %s NOT NULL
	)`, s.dialect.blobType, s.dialect.timeType)
}

func (s *SQL) selectSQL() string {
	return `SELECT entry FROM area_records WHERE code = ` + s.dialect.placeholder(1)
}

func (s *SQL) upsertSQL() string {
	p := s.dialect.placeholder
	return fmt.Sprintf(`INSERT INTO area_records (code, entry, updated_at) VALUES (%s, %s, %s)
		ON CONFLICT (code) DO UPDATE SET entry = excluded.entry, updated_at = excluded.updated_at`, p(1), p(2), p(3))
}

func (s *SQL) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.selectSQL(), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *SQL) Store(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, s.upsertSQL(), key, data, time.Now().UTC())
	return err
}

func (s *SQL) Close() error {
	return s.db.Close()
}
