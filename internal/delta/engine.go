package delta

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StateStore is the minimal persistence interface the Engine needs. It is
// implemented by internal/catalog's DeltaStateRepository; kept as a narrow
// interface here so this package stays independent of the catalog's GORM
// types.
type StateStore interface {
	// LoadActive returns reef_id -> row_hash for all non-deleted state rows
	// of a profile.
	LoadActive(ctx context.Context, profileID uuid.UUID) (map[string]string, error)

	// Commit upserts (profileID, reefID) -> hash/lastSeen/executionID for
	// every entry in hashes, and — if trackDeletes — flips is_deleted=true
	// for every id in deletedIDs. Must run in batches of at most 1000 rows
	// per transaction to bound lock hold time.
	Commit(ctx context.Context, profileID, executionID uuid.UUID, hashes map[string]string, deletedIDs []string, trackDeletes bool, now time.Time) error

	// ResetAll deletes all state rows for a profile.
	ResetAll(ctx context.Context, profileID uuid.UUID) error

	// ResetRows deletes specific state rows for a profile.
	ResetRows(ctx context.Context, profileID uuid.UUID, reefIDs []string) error

	// GenerateBaseline clears existing state and inserts the given hashes
	// against the sentinel execution id (uuid.Nil).
	GenerateBaseline(ctx context.Context, profileID uuid.UUID, hashes map[string]string, now time.Time) error

	// PurgeRetention deletes is_deleted=1 rows whose last_seen_at predates
	// the cutoff.
	PurgeRetention(ctx context.Context, profileID uuid.UUID, cutoff time.Time) (int64, error)

	// SchemaColumns returns the last-recorded column set for a profile (nil,
	// false if none recorded yet).
	SchemaColumns(ctx context.Context, profileID uuid.UUID) ([]string, bool, error)

	// SetSchemaColumns records the current column set for a profile.
	SetSchemaColumns(ctx context.Context, profileID uuid.UUID, columns []string, now time.Time) error
}

// MaxCommitBatch is the per-transaction row cap
const MaxCommitBatch = 1000

// Engine orchestrates one profile run's delta-sync lifecycle: load previous
// state, classify input rows, and — strictly after the caller's delivery
// step succeeds — commit the new state.
type Engine struct {
	store StateStore
}

// NewEngine builds an Engine over the given StateStore.
func NewEngine(store StateStore) *Engine {
	return &Engine{store: store}
}

// Plan is the in-memory result of a delta run, produced before delivery.
// Nothing is persisted until Commit is called.
type Plan struct {
	ProfileID      uuid.UUID
	ExecutionID    uuid.UUID
	Config         Config
	Classification Classification
	TrackDeletes   bool
}

// Prepare loads previous state, validates and classifies the input rows,
// and optionally resets state first if the profile's column schema changed.
// It performs no writes to delta state.
func (e *Engine) Prepare(ctx context.Context, profileID, executionID uuid.UUID, cfg Config, rows []Row, columnNames []string) (*Plan, error) {
	if cfg.ResetOnSchemaChange {
		changed, err := e.schemaChanged(ctx, profileID, columnNames)
		if err != nil {
			return nil, err
		}
		if changed {
			if err := e.store.ResetAll(ctx, profileID); err != nil {
				return nil, fmt.Errorf("delta: failed to reset state on schema change: %w", err)
			}
		}
		if err := e.store.SetSchemaColumns(ctx, profileID, columnNames, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("delta: failed to record schema columns: %w", err)
		}
	}

	prepared, _, err := PrepareRows(cfg, rows)
	if err != nil {
		return nil, err
	}

	previous, err := e.store.LoadActive(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("delta: failed to load previous state: %w", err)
	}

	classification := Classify(prepared, previous)

	return &Plan{
		ProfileID:      profileID,
		ExecutionID:    executionID,
		Config:         cfg,
		Classification: classification,
		TrackDeletes:   cfg.TrackDeletes,
	}, nil
}

func (e *Engine) schemaChanged(ctx context.Context, profileID uuid.UUID, columnNames []string) (bool, error) {
	prev, existed, err := e.store.SchemaColumns(ctx, profileID)
	if err != nil {
		return false, fmt.Errorf("delta: failed to load recorded schema: %w", err)
	}
	if !existed {
		return false, nil
	}
	if len(prev) != len(columnNames) {
		return true, nil
	}
	prevSet := make(map[string]bool, len(prev))
	for _, c := range prev {
		prevSet[c] = true
	}
	for _, c := range columnNames {
		if !prevSet[c] {
			return true, nil
		}
	}
	return false, nil
}

// Commit persists the plan's classification. Callers MUST only call this
// after their delivery step has reported success — the crucial ordering
// invariant If delivery fails, the caller must simply
// discard the Plan: the next run will still see the rows as new/changed
// because nothing was written.
func (e *Engine) Commit(ctx context.Context, plan *Plan) error {
	now := time.Now().UTC()
	return e.store.Commit(ctx, plan.ProfileID, plan.ExecutionID, plan.Classification.CurrentHashes, plan.Classification.DeletedIDs, plan.TrackDeletes, now)
}

// ResetAll deletes all delta state for a profile.
func (e *Engine) ResetAll(ctx context.Context, profileID uuid.UUID) error {
	return e.store.ResetAll(ctx, profileID)
}

// ResetRows deletes specific delta state rows for a profile.
func (e *Engine) ResetRows(ctx context.Context, profileID uuid.UUID, reefIDs []string) error {
	return e.store.ResetRows(ctx, profileID, reefIDs)
}

// GenerateBaseline clears existing state for a profile and seeds it with the
// hashes of the given rows, against sentinel execution id uuid.Nil, without
// classifying anything as new/changed.
func (e *Engine) GenerateBaseline(ctx context.Context, cfg Config, profileID uuid.UUID, rows []Row) error {
	prepared, _, err := PrepareRows(cfg, rows)
	if err != nil {
		return err
	}
	hashes := make(map[string]string, len(prepared))
	for _, p := range prepared {
		hashes[p.ReefID] = p.RowHash
	}
	return e.store.GenerateBaseline(ctx, profileID, hashes, time.Now().UTC())
}

// PurgeRetention deletes deleted-state rows older than retentionDays for a
// profile, returning the count removed. Intended to be called from a
// periodic background task.
func (e *Engine) PurgeRetention(ctx context.Context, profileID uuid.UUID, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	return e.store.PurgeRetention(ctx, profileID, cutoff)
}
