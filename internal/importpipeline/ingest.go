package importpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/delta"
	"github.com/reefdata/reef/internal/importpipeline/parse"
	"github.com/reefdata/reef/internal/source"
)

// ingestOutcome is what phase 7 (parse/map/delta/write) hands back to the
// orchestrator. buffered only carries rows still awaiting delivery: it is
// empty whenever the database write already happened inline during ingest
// (every load strategy except FullReplace), and populated for FullReplace
// (which needs every row in hand before it can truncate-then-insert) and for
// a local-file target (which writes once, at the end).
type ingestOutcome struct {
	buffered    []mappedRow
	plan        *delta.Plan
	aborted     bool
	abortReason string
}

// ingest runs phase 7: parse every fetched item's bytes, map each row onto
// target columns, classify against previous delta state if enabled, and
// write, honouring the profile's parse/row failure policies and abort
// thresholds.
func (p *Pipeline) ingest(ctx context.Context, profile *catalog.ImportProfile, w *writer, items []source.Item, targetColumns []string, deltaEnabled bool, deltaCfg delta.Config, execution *catalog.Execution) (ingestOutcome, error) {
	parser, err := parse.ForFormat(profile.SourceFormat)
	if err != nil {
		return ingestOutcome{}, fmt.Errorf("importpipeline: %w", err)
	}
	mappingCfg, err := parseMappingConfig(profile)
	mappingCfg.TargetColumns = targetColumns
	if err != nil {
		return ingestOutcome{}, err
	}
	formatCfg, err := parseFormatConfig(profile.FormatConfigJSON)
	if err != nil {
		return ingestOutcome{}, err
	}

	var buffered []mappedRow
	aborted := false
	abortReason := ""

outer:
	for _, item := range items {
		for row := range parser.Parse(item.ContentBytes, formatCfg) {
			execution.RowsRead++

			if row.ParseError != nil {
				switch profile.OnParseFailure {
				case catalog.PolicyFail:
					return ingestOutcome{}, fmt.Errorf("importpipeline: parse row %d of %q: %w", row.LineNumber, item.Identifier, row.ParseError)
				case catalog.PolicySkip:
					execution.RowsSkipped++
					continue
				default: // Continue
					execution.RowsFailed++
					if abortReason = checkAbortThreshold(profile, execution); abortReason != "" {
						aborted = true
						break outer
					}
					continue
				}
			}

			if row.IsSkipped {
				execution.RowsSkipped++
				continue
			}

			mapped, err := applyMapping(mappingCfg, row.Columns)
			if err != nil {
				switch profile.OnRowFailure {
				case catalog.PolicyFail:
					return ingestOutcome{}, fmt.Errorf("importpipeline: map row %d of %q: %w", row.LineNumber, item.Identifier, err)
				case catalog.PolicySkip:
					execution.RowsSkipped++
					continue
				default: // Continue
					execution.RowsFailed++
					if abortReason = checkAbortThreshold(profile, execution); abortReason != "" {
						aborted = true
						break outer
					}
					continue
				}
			}

			buffered = append(buffered, mapped)
		}
	}

	if aborted {
		return ingestOutcome{aborted: true, abortReason: abortReason}, nil
	}

	var plan *delta.Plan
	if deltaEnabled {
		deltaRows, columns := toDeltaRows(buffered, deltaCfg.ReefIDColumn)
		plan, err = p.deltaEngine.Prepare(ctx, profile.ID, execution.ID, deltaCfg, deltaRows, columns)
		if err != nil {
			return ingestOutcome{}, fmt.Errorf("importpipeline: delta classify: %w", err)
		}
		buffered = filterUnchanged(buffered, plan, deltaCfg.ReefIDColumn)
	}

	// FullReplace and local-file targets need every row buffered for a
	// single finishing write; every other strategy against a database
	// target writes in BatchSize chunks right here.
	if profile.TargetKind == catalog.TargetDatabase && profile.LoadStrategy != catalog.LoadFullReplace {
		if err := writeInChunks(ctx, w, profile, buffered, &execution.RowsInserted); err != nil {
			return ingestOutcome{}, fmt.Errorf("importpipeline: write: %w", err)
		}
		return ingestOutcome{plan: plan}, nil
	}

	return ingestOutcome{buffered: buffered, plan: plan}, nil
}

func writeInChunks(ctx context.Context, w *writer, profile *catalog.ImportProfile, rows []mappedRow, written *int64) error {
	batchSize := profile.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	var keyColumns []string
	if profile.UpsertKeyColumns != "" {
		for _, c := range strings.Split(profile.UpsertKeyColumns, ",") {
			keyColumns = append(keyColumns, strings.TrimSpace(c))
		}
	}
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := w.WriteBatch(ctx, profile.LoadStrategy, keyColumns, rows[start:end])
		if err != nil {
			return err
		}
		*written += n
	}
	return nil
}

// checkAbortThreshold reports a non-empty reason once execution.RowsFailed
// crosses either configured abort limit.
func checkAbortThreshold(profile *catalog.ImportProfile, execution *catalog.Execution) string {
	if profile.MaxFailedRowsBeforeAbort > 0 && execution.RowsFailed >= int64(profile.MaxFailedRowsBeforeAbort) {
		return fmt.Sprintf("aborted: %d failed rows reached max_failed_rows_before_abort", execution.RowsFailed)
	}
	if profile.MaxFailedRowsPercent > 0 && execution.RowsRead > 0 {
		percent := float64(execution.RowsFailed) / float64(execution.RowsRead) * 100
		if percent > profile.MaxFailedRowsPercent {
			return fmt.Sprintf("aborted: failed row rate %.1f%% exceeded max_failed_rows_percent", percent)
		}
	}
	return ""
}

func parseFormatConfig(raw string) (map[string]interface{}, error) {
	cfg := map[string]interface{}{}
	if raw == "" || raw == "{}" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("importpipeline: parse format_config: %w", err)
	}
	return cfg, nil
}

// toDeltaRows converts mapped rows into delta.Row, pulling reefIDCol as each
// row's ReefID, and returns the full set of observed target column names.
func toDeltaRows(rows []mappedRow, reefIDCol string) ([]delta.Row, []string) {
	columnSet := map[string]bool{}
	out := make([]delta.Row, 0, len(rows))
	for _, r := range rows {
		for k := range r.values {
			columnSet[k] = true
		}
		out = append(out, delta.Row{Columns: r.values, ReefID: r.values[reefIDCol]})
	}
	columns := make([]string, 0, len(columnSet))
	for c := range columnSet {
		columns = append(columns, c)
	}
	return out, columns
}

// filterUnchanged drops rows the delta engine classified as unchanged from
// this run's write.
func filterUnchanged(rows []mappedRow, plan *delta.Plan, reefIDCol string) []mappedRow {
	if plan == nil {
		return rows
	}
	unchanged := make(map[string]bool, len(plan.Classification.UnchangedRows))
	for _, id := range plan.Classification.UnchangedRows {
		unchanged[id] = true
	}
	out := make([]mappedRow, 0, len(rows))
	for _, r := range rows {
		reefID := fmt.Sprintf("%v", r.values[reefIDCol])
		if !unchanged[reefID] {
			out = append(out, r)
		}
	}
	return out
}
