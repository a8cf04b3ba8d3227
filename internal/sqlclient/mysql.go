package sqlclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// appendApplicationNameMySQL sets the connectionAttributes program_name,
// the closest MySQL equivalent of an ApplicationName.
func appendApplicationNameMySQL(dsn string) string {
	if strings.Contains(dsn, "connectionAttributes=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "connectionAttributes=program_name:Reef"
}

type mysqlClient struct{ db *sql.DB }

func (c *mysqlClient) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	ctx, cancel := withCommandTimeout(ctx)
	defer cancel()
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlclient: mysql query: %w", err)
	}
	return scanRowsToMaps(rows)
}

func (c *mysqlClient) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ctx, cancel := withCommandTimeout(ctx)
	defer cancel()
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlclient: mysql exec: %w", err)
	}
	return result.RowsAffected()
}

func (c *mysqlClient) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *mysqlClient) Close() error                   { return c.db.Close() }
