// Package profilepipeline implements the profile execution pipeline: the
// eleven ordered phases that take a scheduled export profile from a SQL
// query to delivered, delta-tracked output.
package profilepipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/delta"
	"github.com/reefdata/reef/internal/destination"
	"github.com/reefdata/reef/internal/emailexport"
	"github.com/reefdata/reef/internal/sqlclient"
)

// PhaseTimings accumulates the duration of each named phase for persistence
// onto the Execution record.
type PhaseTimings map[string]time.Duration

func (t PhaseTimings) record(name string, start time.Time) {
	t[name] = time.Since(start)
}

func (t PhaseTimings) toJSON() string {
	flat := make(map[string]float64, len(t))
	for k, v := range t {
		flat[k] = v.Seconds()
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Notifier sends a terminal-status notification, implemented by
// internal/notify.
type Notifier interface {
	NotifyExecutionTerminal(ctx context.Context, execution *catalog.Execution, profile *catalog.Profile) error
}

// Pipeline wires every dependency the profile execution phases need.
type Pipeline struct {
	store        *catalog.Store
	deltaEngine  *delta.Engine
	destinations *destination.Registry
	notifier     Notifier
	log          *zap.Logger
	emailer      *emailexport.Exporter

	// openSource opens a sqlclient.Client for a catalog.Connection; split
	// out as a field so tests can substitute a fake without a real DB.
	openSource func(ctx context.Context, conn *catalog.Connection) (sqlclient.Client, error)
}

// New builds a Pipeline.
func New(store *catalog.Store, deltaEngine *delta.Engine, destinations *destination.Registry, notifier Notifier, log *zap.Logger, openSource func(ctx context.Context, conn *catalog.Connection) (sqlclient.Client, error)) *Pipeline {
	return &Pipeline{store: store, deltaEngine: deltaEngine, destinations: destinations, notifier: notifier, log: log, openSource: openSource, emailer: emailexport.NewExporter(log)}
}

// Result summarises one run for the caller (scheduler/webhook/manual
// trigger), independent of what is persisted on the Execution row.
type Result struct {
	Execution *catalog.Execution
	Err       error
}

// Run executes every phase for one profile, honouring ctx
// cancellation at every blocking point.
func (p *Pipeline) Run(ctx context.Context, profile *catalog.Profile, triggeredBy catalog.TriggeredBy) Result {
	timings := PhaseTimings{}
	started := time.Now()

	// Phase 1: Initialise.
	phaseStart := time.Now()
	execution := &catalog.Execution{
		ProfileID:   profile.ID,
		Status:      catalog.StatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   started,
	}
	if err := p.store.Executions.Create(ctx, execution); err != nil {
		return Result{Err: fmt.Errorf("profilepipeline: create execution: %w", err)}
	}
	timings.record("initialise", phaseStart)

	result := p.run(ctx, profile, execution, timings)
	p.finalise(ctx, profile, execution, timings)
	return result
}

func (p *Pipeline) run(ctx context.Context, profile *catalog.Profile, execution *catalog.Execution, timings PhaseTimings) Result {
	conn, err := p.store.Connections.GetByID(ctx, profile.ConnectionID)
	if err != nil {
		return p.fail(execution, fmt.Errorf("profilepipeline: load connection: %w", err))
	}

	client, err := p.openSource(ctx, conn)
	if err != nil {
		return p.fail(execution, fmt.Errorf("profilepipeline: open connection: %w", err))
	}
	defer client.Close()

	// Phase 2: Pre-process.
	phaseStart := time.Now()
	if profile.PreProcessJSON != "" && profile.PreProcessJSON != "{}" {
		if err := runProcessScript(ctx, client, profile.PreProcessJSON); err != nil {
			return p.fail(execution, fmt.Errorf("profilepipeline: pre-process: %w", err))
		}
	}
	timings.record("pre_process", phaseStart)

	// Phase 3: Query, with transient-error retry.
	phaseStart = time.Now()
	dialect := connDialect(conn.Kind)
	rows, err := sqlclient.QueryWithRetry(ctx, client, dialect, 2, profile.Query)
	if err != nil {
		return p.fail(execution, fmt.Errorf("profilepipeline: query: %w", err))
	}
	execution.RowsRead = int64(len(rows))
	timings.record("query", phaseStart)

	// Phase 4: Delta classify.
	phaseStart = time.Now()
	var plan *delta.Plan
	var cfg delta.Config
	if profile.DeltaEnabled {
		cfg, err = deltaConfigFromJSON(profile.DeltaConfigJSON)
		if err != nil {
			return p.fail(execution, fmt.Errorf("profilepipeline: delta config: %w", err))
		}
		deltaRows, columns := toDeltaRows(rows, cfg.ReefIDColumn)
		plan, err = p.deltaEngine.Prepare(ctx, profile.ID, execution.ID, cfg, deltaRows, columns)
		if err != nil {
			return p.fail(execution, fmt.Errorf("profilepipeline: delta classify: %w", err))
		}
		rows = filterUnchanged(rows, plan, cfg.ReefIDColumn)
	}
	timings.record("delta_classify", phaseStart)

	if profile.IsEmailExport {
		// Email export variant replaces transform/split/deliver.
		phaseStart = time.Now()
		splits, err := p.deliverEmail(ctx, profile, rows)
		timings.record("email_deliver", phaseStart)
		if err != nil {
			return p.fail(execution, fmt.Errorf("profilepipeline: email export: %w", err))
		}
		p.recordSplits(ctx, execution, splits)
		return p.commitAndSucceed(ctx, profile, execution, plan, timings, splits, nil, nil, nil)
	}

	// Phase 5: Transform.
	phaseStart = time.Now()
	payload, err := transformRows(ctx, client, dialect, profile, rows)
	if err != nil {
		return p.fail(execution, fmt.Errorf("profilepipeline: transform: %w", err))
	}
	timings.record("transform", phaseStart)

	// Phase 6: Split.
	phaseStart = time.Now()
	artifacts, err := splitPayload(profile, rows, payload)
	if err != nil {
		return p.fail(execution, fmt.Errorf("profilepipeline: split: %w", err))
	}
	timings.record("split", phaseStart)

	// Phase 7: Deliver.
	phaseStart = time.Now()
	dest, err := p.store.Destinations.GetByID(ctx, profile.DestinationID)
	if err != nil {
		return p.fail(execution, fmt.Errorf("profilepipeline: load destination: %w", err))
	}
	destConfig, err := destinationConfig(dest)
	if err != nil {
		return p.fail(execution, err)
	}

	splits, delivered, deliverErr := p.deliverArtifacts(ctx, dest, destConfig, artifacts)
	timings.record("deliver", phaseStart)
	if deliverErr != nil {
		if profile.PostProcessJSON != "" {
			p.compensate(ctx, dest, destConfig, delivered)
		}
		return p.fail(execution, fmt.Errorf("profilepipeline: deliver: %w", deliverErr))
	}
	p.recordSplits(ctx, execution, splits)

	for _, a := range artifacts {
		execution.BytesProcessed += int64(len(a.Content))
	}

	return p.commitAndSucceed(ctx, profile, execution, plan, timings, splits, dest, destConfig, delivered)
}

// commitAndSucceed runs phases 8-9. dest/destConfig/delivered are the
// delivery target and the list of artifact paths actually written, used to
// compensate (best-effort undo) a delivered file if post-process fails and
// the profile has RollbackOnFailure set; all three are nil for the
// is_email_export path, which has nothing to compensate.
func (p *Pipeline) commitAndSucceed(ctx context.Context, profile *catalog.Profile, execution *catalog.Execution, plan *delta.Plan, timings PhaseTimings, splits []catalog.ExecutionSplit, dest *catalog.Destination, destConfig map[string]interface{}, delivered []string) Result {
	// Phase 8: Commit delta.
	phaseStart := time.Now()
	if plan != nil {
		if err := p.deltaEngine.Commit(ctx, plan); err != nil {
			return p.fail(execution, fmt.Errorf("profilepipeline: commit delta: %w", err))
		}
	}
	timings.record("commit_delta", phaseStart)

	// Phase 9: Post-process.
	phaseStart = time.Now()
	if profile.PostProcessJSON != "" && profile.PostProcessJSON != "{}" {
		runPostProcess := execution.RowsRead > 0
		if execution.RowsRead == 0 {
			switch profile.OnZeroRows {
			case catalog.ZeroRowsContinue:
				runPostProcess = true
			case catalog.ZeroRowsFail:
				return p.fail(execution, fmt.Errorf("profilepipeline: zero rows read, on_zero_rows=Fail"))
			default: // catalog.ZeroRowsSkip, or unset
				runPostProcess = false
			}
		}

		if runPostProcess {
			conn, err := p.store.Connections.GetByID(ctx, profile.ConnectionID)
			if err == nil {
				if client, err := p.openSource(ctx, conn); err == nil {
					err := runProcessScript(ctx, client, profile.PostProcessJSON)
					client.Close()
					if err != nil {
						if dest != nil && profile.RollbackOnFailure {
							p.compensate(ctx, dest, destConfig, delivered)
						}
						if profile.SkipOnFailure {
							if p.log != nil {
								p.log.Warn("profilepipeline: post-process failed, continuing per skip_on_failure", zap.Error(err))
							}
						} else {
							return p.fail(execution, fmt.Errorf("profilepipeline: post-process: %w", err))
						}
					}
				}
			}
		}
	}
	timings.record("post_process", phaseStart)

	execution.Status = overallStatus(splits)
	return Result{Execution: execution}
}

func (p *Pipeline) fail(execution *catalog.Execution, err error) Result {
	execution.Status = catalog.StatusFailed
	execution.ErrorMessage = err.Error()
	return Result{Execution: execution, Err: err}
}

func (p *Pipeline) finalise(ctx context.Context, profile *catalog.Profile, execution *catalog.Execution, timings PhaseTimings) {
	// Phase 10: Notify.
	if p.notifier != nil {
		if err := p.notifier.NotifyExecutionTerminal(ctx, execution, profile); err != nil && p.log != nil {
			p.log.Warn("profilepipeline: notify failed", zap.Error(err))
		}
	}

	// Phase 11: Finalise.
	now := time.Now()
	execution.CompletedAt = &now
	execution.PhaseTimingJSON = timings.toJSON()
	if err := p.store.Executions.Update(ctx, execution); err != nil && p.log != nil {
		p.log.Error("profilepipeline: persist execution failed", zap.Error(err))
	}
	if err := p.store.Profiles.UpdateLastExecutedAt(ctx, profile.ID, now); err != nil && p.log != nil {
		p.log.Error("profilepipeline: update last_executed_at failed", zap.Error(err))
	}
}

func (p *Pipeline) recordSplits(ctx context.Context, execution *catalog.Execution, splits []catalog.ExecutionSplit) {
	for i := range splits {
		splits[i].ExecutionID = execution.ID
		if err := p.store.Executions.CreateSplit(ctx, &splits[i]); err != nil && p.log != nil {
			p.log.Warn("profilepipeline: persist split failed", zap.Error(err))
		}
	}
	execution.Splits = splits
}

func overallStatus(splits []catalog.ExecutionSplit) catalog.ExecutionStatus {
	if len(splits) == 0 {
		return catalog.StatusSuccess
	}
	successes, failures := 0, 0
	for _, s := range splits {
		if s.Status == catalog.StatusSuccess {
			successes++
		} else {
			failures++
		}
	}
	switch {
	case failures == 0:
		return catalog.StatusSuccess
	case successes == 0:
		return catalog.StatusFailed
	default:
		return catalog.StatusPartialSuccess
	}
}

func connDialect(kind catalog.ConnectionKind) sqlclient.Dialect {
	switch kind {
	case catalog.ConnectionSqlServer:
		return sqlclient.DialectSQLServer
	case catalog.ConnectionMySQL:
		return sqlclient.DialectMySQL
	default:
		return sqlclient.DialectPostgres
	}
}

// toDeltaRows converts query result rows into delta.Row, pulling reefIDCol
// as each row's ReefID, and returns the full set of observed column names.
func toDeltaRows(rows []sqlclient.Row, reefIDCol string) ([]delta.Row, []string) {
	columnSet := map[string]bool{}
	out := make([]delta.Row, 0, len(rows))
	for _, r := range rows {
		cols := make(map[string]interface{}, len(r))
		for k, v := range r {
			cols[k] = v
			columnSet[k] = true
		}
		out = append(out, delta.Row{Columns: cols, ReefID: r[reefIDCol]})
	}
	columns := make([]string, 0, len(columnSet))
	for c := range columnSet {
		columns = append(columns, c)
	}
	return out, columns
}

// filterUnchanged drops rows the delta engine classified as unchanged from
// this run's downstream transform/split/deliver phases.
func filterUnchanged(rows []sqlclient.Row, plan *delta.Plan, reefIDCol string) []sqlclient.Row {
	if plan == nil {
		return rows
	}
	unchanged := make(map[string]bool, len(plan.Classification.UnchangedRows))
	for _, id := range plan.Classification.UnchangedRows {
		unchanged[id] = true
	}
	out := make([]sqlclient.Row, 0, len(rows))
	for _, r := range rows {
		reefID := fmt.Sprintf("%v", r[reefIDCol])
		if !unchanged[reefID] {
			out = append(out, r)
		}
	}
	return out
}

func deltaConfigFromJSON(raw string) (delta.Config, error) {
	cfg := delta.DefaultConfig()
	if raw == "" || raw == "{}" {
		return cfg, nil
	}
	var wire struct {
		ReefIDColumn        string `json:"reef_id_column"`
		Algorithm           string `json:"algorithm"`
		TrackDeletes        bool   `json:"track_deletes"`
		ResetOnSchemaChange bool   `json:"reset_on_schema_change"`
		DuplicateStrategy   string `json:"duplicate_strategy"`
		NullStrategy        string `json:"null_strategy"`
		ReefIDNormalization string `json:"reef_id_normalization"`
		RetentionDays       int    `json:"retention_days"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return cfg, fmt.Errorf("profilepipeline: parse delta config: %w", err)
	}
	cfg.ReefIDColumn = wire.ReefIDColumn
	cfg.TrackDeletes = wire.TrackDeletes
	cfg.ResetOnSchemaChange = wire.ResetOnSchemaChange
	cfg.ReefIDNormalization = wire.ReefIDNormalization
	cfg.RetentionDays = wire.RetentionDays
	if wire.Algorithm != "" {
		cfg.HashAlgorithm = delta.HashAlgorithm(wire.Algorithm)
	}
	if wire.DuplicateStrategy != "" {
		cfg.DuplicateStrategy = delta.DuplicateStrategy(wire.DuplicateStrategy)
	}
	if wire.NullStrategy != "" {
		cfg.NullStrategy = delta.NullStrategy(wire.NullStrategy)
	}
	return cfg, nil
}

func destinationConfig(dest *catalog.Destination) (map[string]interface{}, error) {
	var config map[string]interface{}
	if err := json.Unmarshal([]byte(dest.Configuration), &config); err != nil {
		return nil, fmt.Errorf("profilepipeline: parse destination config: %w", err)
	}
	return config, nil
}

func destinationKind(kind catalog.DestinationKind) destination.Kind {
	return destination.Kind(kind)
}

// deliverEmail replaces phases 5-7 for a profile with is_email_export set.
func (p *Pipeline) deliverEmail(ctx context.Context, profile *catalog.Profile, rows []sqlclient.Row) ([]catalog.ExecutionSplit, error) {
	dest, err := p.store.Destinations.GetByID(ctx, profile.DestinationID)
	if err != nil {
		return nil, fmt.Errorf("load email destination: %w", err)
	}
	rawConfig, err := destinationConfig(dest)
	if err != nil {
		return nil, err
	}

	destCfg := emailexport.DestinationConfigFromMap(rawConfig)
	sender := emailexport.NewSender(destCfg)
	return p.emailer.Export(ctx, sender, destCfg, profile, rows)
}
