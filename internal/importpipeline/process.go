package importpipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reefdata/reef/internal/sqlclient"
)

// runProcessScript executes a pre/post-process SQL script on the target
// connection.
func runProcessScript(ctx context.Context, client sqlclient.Client, processJSON string) error {
	var spec struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal([]byte(processJSON), &spec); err != nil {
		return fmt.Errorf("importpipeline: parse process script: %w", err)
	}
	if spec.SQL == "" {
		return nil
	}
	_, err := client.Exec(ctx, spec.SQL)
	return err
}

// probeTargetSchema best-effort discovers the target table's column names,
// for auto_map_columns' case-insensitive passthrough match. A table with no
// rows yields no columns through this driver-agnostic path; that is fine,
// the probe is advisory only.
func probeTargetSchema(ctx context.Context, client sqlclient.Client, dialect sqlclient.Dialect, table string) []string {
	var query string
	switch dialect {
	case sqlclient.DialectSQLServer:
		query = fmt.Sprintf("SELECT TOP 1 * FROM %s", table)
	default:
		query = fmt.Sprintf("SELECT * FROM %s LIMIT 1", table)
	}
	rows, err := client.Query(ctx, query)
	if err != nil || len(rows) == 0 {
		return nil
	}
	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	return columns
}
