package sqlclient

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// transientSQLServerCodes are the SQL Server error numbers treated as
// retryable transient failures.
var transientSQLServerCodes = map[int32]bool{
	-2: true, 1205: true, 1204: true, 40197: true, 40501: true, 40613: true,
	49918: true, 49919: true, 49920: true,
}

// transientMySQLCodes are the MySQL error numbers treated as retryable.
var transientMySQLCodes = map[uint16]bool{
	1205: true, 1213: true, 2006: true, 2013: true,
}

// transientPostgresStates are the PostgreSQL SQLSTATEs treated as retryable.
var transientPostgresStates = map[string]bool{
	"40001": true, "40P01": true, "53300": true, "57P03": true,
}

// IsTransient reports whether err represents a retryable database failure
// for the given dialect.
func IsTransient(dialect Dialect, err error) bool {
	if err == nil {
		return false
	}

	switch dialect {
	case DialectSQLServer:
		var mssqlErr mssql.Error
		if errors.As(err, &mssqlErr) {
			return transientSQLServerCodes[mssqlErr.Number]
		}
		return strings.Contains(err.Error(), "connection") || strings.Contains(err.Error(), "timeout")
	case DialectMySQL:
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) {
			return transientMySQLCodes[mysqlErr.Number]
		}
		return false
	case DialectPostgres:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return transientPostgresStates[string(pqErr.Code)]
		}
		return false
	default:
		return false
	}
}

// QueryWithRetry runs Query, retrying up to maxRetries times (default 2)
// on a transient error with backoff 2*(attempt+1) seconds
// phase 3.
func QueryWithRetry(ctx context.Context, client Client, dialect Dialect, maxRetries int, query string, args ...interface{}) ([]Row, error) {
	if maxRetries <= 0 {
		maxRetries = 2
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		rows, err := client.Query(ctx, query, args...)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if !IsTransient(dialect, err) {
			return nil, err
		}
		if attempt < maxRetries {
			backoff := time.Duration(2*(attempt+1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, lastErr
}

// FormatArgPlaceholder is unused by the default Query path (which relies on
// each driver's native placeholder syntax) but is used by callers — such as
// importpipeline's batched writes — that build parameterised statements
// dynamically.
func FormatArgPlaceholder(dialect Dialect, position int) string {
	switch dialect {
	case DialectPostgres:
		return "$" + strconv.Itoa(position)
	case DialectSQLServer:
		return "@p" + strconv.Itoa(position)
	default:
		return "?"
	}
}
