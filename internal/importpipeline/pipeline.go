// Package importpipeline implements the import execution pipeline: fetch,
// parse, map, delta-classify and batch-write a source payload into a
// database table or local file, then apply deletes and run post-process.
package importpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/delta"
	"github.com/reefdata/reef/internal/source"
	"github.com/reefdata/reef/internal/sqlclient"
)

// PhaseTimings accumulates the duration of each named phase for persistence
// onto the Execution record.
type PhaseTimings map[string]time.Duration

func (t PhaseTimings) record(name string, start time.Time) { t[name] = time.Since(start) }

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

// Notifier sends a terminal-status notification for an import run,
// implemented by internal/notify.
type Notifier interface {
	NotifyImportExecutionTerminal(ctx context.Context, execution *catalog.Execution, profile *catalog.ImportProfile) error
}

// Pipeline wires every dependency the import phases need.
type Pipeline struct {
	store       *catalog.Store
	deltaEngine *delta.Engine
	sources     *source.Registry
	notifier    Notifier
	log         *zap.Logger

	openTarget func(ctx context.Context, conn *catalog.Connection) (sqlclient.Client, error)
}

// New builds a Pipeline.
func New(store *catalog.Store, deltaEngine *delta.Engine, sources *source.Registry, notifier Notifier, log *zap.Logger, openTarget func(ctx context.Context, conn *catalog.Connection) (sqlclient.Client, error)) *Pipeline {
	return &Pipeline{store: store, deltaEngine: deltaEngine, sources: sources, notifier: notifier, log: log, openTarget: openTarget}
}

// Result summarises one run for the caller.
type Result struct {
	Execution *catalog.Execution
	Err       error
}

// Run executes every phase for one import profile.
func (p *Pipeline) Run(ctx context.Context, profile *catalog.ImportProfile, triggeredBy catalog.TriggeredBy) Result {
	timings := PhaseTimings{}
	started := time.Now()

	// Phase 1: Initialise.
	phaseStart := time.Now()
	execution := &catalog.Execution{
		ProfileID:   profile.ID,
		IsImport:    true,
		Status:      catalog.StatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   started,
	}
	if err := p.store.Executions.Create(ctx, execution); err != nil {
		return Result{Err: fmt.Errorf("importpipeline: create execution: %w", err)}
	}
	timings.record("initialise", phaseStart)

	result := p.run(ctx, profile, execution, timings)
	p.finalise(ctx, profile, execution, timings)
	return result
}

func (p *Pipeline) run(ctx context.Context, profile *catalog.ImportProfile, execution *catalog.Execution, timings PhaseTimings) Result {
	var client sqlclient.Client
	var dialect sqlclient.Dialect

	// Phase 2/3: load target connection and pre-process (Database target only).
	phaseStart := time.Now()
	if profile.TargetKind == catalog.TargetDatabase {
		conn, err := p.store.Connections.GetByID(ctx, *profile.TargetConnID)
		if err != nil {
			return p.fail(execution, fmt.Errorf("importpipeline: load target connection: %w", err))
		}
		dialect = connDialect(conn.Kind)
		client, err = p.openTarget(ctx, conn)
		if err != nil {
			return p.fail(execution, fmt.Errorf("importpipeline: open target connection: %w", err))
		}
		defer client.Close()

		if profile.PreProcessJSON != "" && profile.PreProcessJSON != "{}" {
			if err := runProcessScript(ctx, client, profile.PreProcessJSON); err != nil {
				return p.fail(execution, fmt.Errorf("importpipeline: pre-process: %w", err))
			}
		}
	}
	timings.record("pre_process", phaseStart)

	// Phase 4: Fetch, with retry.
	phaseStart = time.Now()
	sourceCfg, err := sourceConfig(profile)
	if err != nil {
		return p.fail(execution, err)
	}
	items, err := p.sources.Fetch(ctx, source.Kind(profile.SourceKind), sourceCfg, profile.FilePattern,
		source.Selection(profile.SelectionRule), profile.RetryCount, source.OnSourceFailure(profile.OnSourceFailure))
	if err != nil {
		return p.fail(execution, fmt.Errorf("importpipeline: fetch: %w", err))
	}
	timings.record("fetch", phaseStart)

	// Phase 5: Schema probe (best-effort, Database target only).
	phaseStart = time.Now()
	var targetColumns []string
	if profile.TargetKind == catalog.TargetDatabase {
		targetColumns = probeTargetSchema(ctx, client, dialect, profile.TargetTable)
	}
	timings.record("schema_probe", phaseStart)

	// Phase 6: Load previous delta state.
	phaseStart = time.Now()
	var deltaCfg delta.Config
	deltaEnabled := profile.DeltaEnabled
	if deltaEnabled {
		deltaCfg, err = deltaConfigFromJSON(profile.DeltaConfigJSON)
		if err != nil {
			return p.fail(execution, fmt.Errorf("importpipeline: delta config: %w", err))
		}
	}
	timings.record("load_delta_state", phaseStart)

	// Phase 7: Parse -> Map -> Delta -> Write.
	phaseStart = time.Now()
	w := newWriter(client, dialect, profile.TargetTable)
	outcome, err := p.ingest(ctx, profile, w, items, targetColumns, deltaEnabled, deltaCfg, execution)
	timings.record("parse_map_delta_write", phaseStart)
	if err != nil {
		return p.fail(execution, err)
	}
	if outcome.aborted {
		execution.Status = catalog.StatusAborted
		execution.ErrorMessage = outcome.abortReason
		return Result{Execution: execution}
	}

	// Phase 8: FullReplace finalise.
	if profile.LoadStrategy == catalog.LoadFullReplace && profile.TargetKind == catalog.TargetDatabase {
		phaseStart = time.Now()
		if err := w.TruncateTarget(ctx); err != nil {
			return p.fail(execution, fmt.Errorf("importpipeline: truncate target: %w", err))
		}
		n, err := w.WriteBatch(ctx, catalog.LoadInsert, nil, outcome.buffered)
		if err != nil {
			return p.fail(execution, fmt.Errorf("importpipeline: full replace insert: %w", err))
		}
		execution.RowsInserted += n
		timings.record("full_replace_finalise", phaseStart)
	} else if profile.TargetKind == catalog.TargetLocalFile {
		phaseStart = time.Now()
		n, err := writeLocalFile(profile, outcome.buffered)
		if err != nil {
			return p.fail(execution, err)
		}
		execution.RowsInserted += n
		timings.record("local_file_write", phaseStart)
	}

	// Phase 9: Commit delta state.
	phaseStart = time.Now()
	if outcome.plan != nil {
		if err := p.deltaEngine.Commit(ctx, outcome.plan); err != nil {
			return p.fail(execution, fmt.Errorf("importpipeline: commit delta: %w", err))
		}
		if len(outcome.plan.Classification.CurrentHashes) == 0 {
			p.log.Warn("importpipeline: delta enabled but zero rows tracked, check reef id column mapping",
				zap.String("import_profile", profile.Code))
		}
	}
	timings.record("commit_delta", phaseStart)

	// Phase 10: Archive source items (best-effort).
	phaseStart = time.Now()
	if profile.ArchiveAfterImport {
		for _, item := range items {
			if err := p.sources.Archive(ctx, source.Kind(profile.SourceKind), sourceCfg, item.Identifier); err != nil {
				p.log.Warn("importpipeline: archive failed", zap.String("identifier", item.Identifier), zap.Error(err))
			}
		}
	}
	timings.record("archive", phaseStart)

	// Phase 11: Apply deletes.
	phaseStart = time.Now()
	if deltaEnabled && deltaCfg.TrackDeletes && outcome.plan != nil && profile.TargetKind == catalog.TargetDatabase {
		keyColumn := targetKeyColumn(profile)
		if err := w.ApplyDeletes(ctx, profile.DeleteStrategy, keyColumn, outcome.plan.Classification.DeletedIDs); err != nil {
			p.log.Warn("importpipeline: apply deletes failed", zap.Error(err))
		}
	}
	timings.record("apply_deletes", phaseStart)

	// Phase 12: Post-process.
	phaseStart = time.Now()
	if profile.PostProcessJSON != "" && profile.PostProcessJSON != "{}" && profile.TargetKind == catalog.TargetDatabase {
		if err := runProcessScript(ctx, client, profile.PostProcessJSON); err != nil {
			if !profile.SkipOnFailure {
				return p.fail(execution, fmt.Errorf("importpipeline: post-process: %w", err))
			}
			p.log.Warn("importpipeline: post-process failed, continuing per skip_on_failure", zap.Error(err))
		}
	}
	timings.record("post_process", phaseStart)

	execution.Status = overallStatus(execution)
	return Result{Execution: execution}
}

func (p *Pipeline) fail(execution *catalog.Execution, err error) Result {
	execution.Status = catalog.StatusFailed
	execution.ErrorMessage = err.Error()
	return Result{Execution: execution, Err: err}
}

func (p *Pipeline) finalise(ctx context.Context, profile *catalog.ImportProfile, execution *catalog.Execution, timings PhaseTimings) {
	if p.notifier != nil {
		if err := p.notifier.NotifyImportExecutionTerminal(ctx, execution, profile); err != nil && p.log != nil {
			p.log.Warn("importpipeline: notify failed", zap.Error(err))
		}
	}

	now := time.Now()
	execution.CompletedAt = &now
	execution.PhaseTimingJSON = timings.toJSON()
	if err := p.store.Executions.Update(ctx, execution); err != nil && p.log != nil {
		p.log.Error("importpipeline: persist execution failed", zap.Error(err))
	}
	if err := p.store.ImportProfiles.UpdateLastExecutedAt(ctx, profile.ID, now); err != nil && p.log != nil {
		p.log.Error("importpipeline: update last_executed_at failed", zap.Error(err))
	}
}

func overallStatus(execution *catalog.Execution) catalog.ExecutionStatus {
	if execution.RowsFailed == 0 {
		return catalog.StatusSuccess
	}
	if execution.RowsInserted == 0 && execution.RowsRead > 0 {
		return catalog.StatusFailed
	}
	return catalog.StatusPartialSuccess
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

func sourceConfig(profile *catalog.ImportProfile) (map[string]interface{}, error) {
	var cfg map[string]interface{}
	if err := json.Unmarshal([]byte(profile.SourceConfiguration), &cfg); err != nil {
		return nil, fmt.Errorf("importpipeline: parse source_configuration: %w", err)
	}
	return cfg, nil
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
		return cfg, fmt.Errorf("importpipeline: parse delta config: %w", err)
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

// targetKeyColumn picks the column deletes are matched against: the first
// key column from the upsert configuration, falling back to the delta
// ReefID column.
func targetKeyColumn(profile *catalog.ImportProfile) string {
	if profile.UpsertKeyColumns != "" {
		parts := strings.Split(profile.UpsertKeyColumns, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	var wire struct {
		ReefIDColumn string `json:"reef_id_column"`
	}
	_ = json.Unmarshal([]byte(profile.DeltaConfigJSON), &wire)
	return wire.ReefIDColumn
}
