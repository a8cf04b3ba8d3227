// Package sqlclient provides a dialect-uniform client over the three
// source/target databases Reef talks to: SQL Server, MySQL, and
// PostgreSQL. Every client tags its session with an ApplicationName of
// "Reef" and returns query results as an ordered sequence of column maps
// with NULL replaced by a Go nil.
package sqlclient

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Dialect identifies a source/target SQL engine.
type Dialect string

const (
	DialectSQLServer Dialect = "sqlserver"
	DialectMySQL     Dialect = "mysql"
	DialectPostgres  Dialect = "postgres"
)

// DefaultCommandTimeout is applied to a query when the caller does not
// supply its own context deadline.
const DefaultCommandTimeout = 30 * time.Second

// Row is one result row as a column-name map; being a Go map it does not
// keep the query's column order. NULL database values are represented as a
// nil map value.
type Row map[string]interface{}

// Client is the uniform surface every dialect adapter implements.
type Client interface {
	// Query runs sql with args and returns every row as a column map,
	// applying DefaultCommandTimeout unless ctx already carries a deadline.
	Query(ctx context.Context, query string, args ...interface{}) ([]Row, error)

	// Exec runs a non-row-returning statement (DDL, stored procedure,
	// pre/post-process scripts) and returns the affected row count.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}

// Config describes how to open a client.
type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open dials the database named by cfg.Dialect and returns a dialect-
// specific Client wrapping a pooled *sql.DB.
func Open(cfg Config) (Client, error) {
	driverName, dsn, err := driverAndDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlclient: open %s: %w", cfg.Dialect, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	switch cfg.Dialect {
	case DialectSQLServer:
		return &sqlServerClient{db: db}, nil
	case DialectMySQL:
		return &mysqlClient{db: db}, nil
	case DialectPostgres:
		return &postgresClient{db: db}, nil
	default:
		db.Close()
		return nil, fmt.Errorf("sqlclient: unsupported dialect %q", cfg.Dialect)
	}
}

func driverAndDSN(cfg Config) (string, string, error) {
	switch cfg.Dialect {
	case DialectSQLServer:
		return "sqlserver", appendApplicationNameSQLServer(cfg.DSN), nil
	case DialectMySQL:
		return "mysql", appendApplicationNameMySQL(cfg.DSN), nil
	case DialectPostgres:
		return "postgres", appendApplicationNamePostgres(cfg.DSN), nil
	default:
		return "", "", fmt.Errorf("sqlclient: unsupported dialect %q", cfg.Dialect)
	}
}

// withCommandTimeout returns ctx as-is if it already has a deadline,
// otherwise wraps it with DefaultCommandTimeout.
func withCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultCommandTimeout)
}

// scanRowsToMaps drains rows into column maps, translating NULLs to nil.
func scanRowsToMaps(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlclient: columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("sqlclient: scan: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
