package sqlclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
)

// appendApplicationNameSQLServer appends an app name= parameter to a
// sqlserver:// DSN unless the caller already supplied one.
func appendApplicationNameSQLServer(dsn string) string {
	if strings.Contains(strings.ToLower(dsn), "app name=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "app name=Reef"
}

type sqlServerClient struct{ db *sql.DB }

func (c *sqlServerClient) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	ctx, cancel := withCommandTimeout(ctx)
	defer cancel()
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlclient: sqlserver query: %w", err)
	}
	return scanRowsToMaps(rows)
}

func (c *sqlServerClient) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ctx, cancel := withCommandTimeout(ctx)
	defer cancel()
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlclient: sqlserver exec: %w", err)
	}
	return result.RowsAffected()
}

func (c *sqlServerClient) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *sqlServerClient) Close() error                   { return c.db.Close() }
