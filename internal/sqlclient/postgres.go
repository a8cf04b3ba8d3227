package sqlclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// appendApplicationNamePostgres sets application_name=Reef on the DSN
// unless the caller already supplied one.
func appendApplicationNamePostgres(dsn string) string {
	if strings.Contains(dsn, "application_name=") {
		return dsn
	}
	if strings.Contains(dsn, "=") && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return dsn + " application_name=Reef"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "application_name=Reef"
}

type postgresClient struct{ db *sql.DB }

func (c *postgresClient) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	ctx, cancel := withCommandTimeout(ctx)
	defer cancel()
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlclient: postgres query: %w", err)
	}
	return scanRowsToMaps(rows)
}

func (c *postgresClient) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ctx, cancel := withCommandTimeout(ctx)
	defer cancel()
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlclient: postgres exec: %w", err)
	}
	return result.RowsAffected()
}

func (c *postgresClient) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *postgresClient) Close() error                   { return c.db.Close() }
