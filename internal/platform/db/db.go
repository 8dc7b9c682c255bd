package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps *sql.DB with the dialect needed to write portable queries.
// Queries are written with ? placeholders and rebound for postgres.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to sqlite (dsn is a file path) or postgres (dsn is a URL).
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres:
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("openDB: unsupported driver %q", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("openDB: open sqlite database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("openDB: verify sqlite connection to %q: %w", path, err)
	}

	return &DB{DB: db, Driver: DriverSQLite}, nil
}

func openPostgres(databaseURL string) (*DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("openDB: open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("openDB: verify postgres connection: %w", err)
	}

	return &DB{DB: db, Driver: DriverPostgres}, nil
}

// Q rewrites ? placeholders for the active driver.
func (d *DB) Q(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	return Rebind(query)
}

// Upsert builds a ?-style "insert or replace" statement for table keyed by keys.
func (d *DB) Upsert(table string, keys []string, cols []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	if d.Driver != DriverPostgres {
		return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), ph)
	}

	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(keys, c) {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ", table, strings.Join(cols, ", "), ph, strings.Join(keys, ", "))
	if len(sets) == 0 {
		return q + "DO NOTHING"
	}
	return q + "DO UPDATE SET " + strings.Join(sets, ", ")
}

// Exec runs a ?-style query, rebinding it first.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, d.Q(query), args...)
}

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
// Question marks inside single-quoted literals are left alone.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
