package delta

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRowHashStableUnderColumnOrder(t *testing.T) {
	cfg := DefaultConfig()
	h1, err := RowHash(cfg, "abc", map[string]interface{}{"name": "Ann", "age": int64(30)})
	if err != nil {
		t.Fatalf("RowHash: %v", err)
	}
	h2, err := RowHash(cfg, "abc", map[string]interface{}{"age": int64(30), "name": "Ann"})
	if err != nil {
		t.Fatalf("RowHash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable hash regardless of map iteration order, got %q vs %q", h1, h2)
	}
}

func TestRowHashChangesWithValue(t *testing.T) {
	cfg := DefaultConfig()
	h1, _ := RowHash(cfg, "abc", map[string]interface{}{"name": "Ann"})
	h2, _ := RowHash(cfg, "abc", map[string]interface{}{"name": "Bob"})
	if h1 == h2 {
		t.Fatalf("expected different hashes for different values")
	}
}

func TestRowHashFloatPrecisionRounding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumericPrecision = 2
	h1, _ := RowHash(cfg, "abc", map[string]interface{}{"amount": 1.0049})
	h2, _ := RowHash(cfg, "abc", map[string]interface{}{"amount": 1.0041})
	if h1 != h2 {
		t.Fatalf("expected 1.0049 and 1.0041 to round to the same 2dp value")
	}
}

func TestPrepareRowsNullStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NullStrategy = NullStrict
	_, _, err := PrepareRows(cfg, []Row{{ReefID: nil, Columns: map[string]interface{}{"a": 1}}})
	if err == nil {
		t.Fatalf("expected error under NullStrict")
	}
}

func TestPrepareRowsNullSkip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NullStrategy = NullSkip
	prepared, dropped, err := PrepareRows(cfg, []Row{
		{ReefID: nil, Columns: map[string]interface{}{"a": 1}},
		{ReefID: "x", Columns: map[string]interface{}{"a": 2}},
	})
	if err != nil {
		t.Fatalf("PrepareRows: %v", err)
	}
	if len(prepared) != 1 || prepared[0].ReefID != "x" {
		t.Fatalf("expected only row x to survive, got %+v", prepared)
	}
	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped row, got %d", len(dropped))
	}
}

func TestPrepareRowsNullGenerate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NullStrategy = NullGenerate
	prepared, _, err := PrepareRows(cfg, []Row{{ReefID: nil, Columns: map[string]interface{}{"a": 1}}})
	if err != nil {
		t.Fatalf("PrepareRows: %v", err)
	}
	if len(prepared) != 1 || prepared[0].ReefID == "" {
		t.Fatalf("expected a generated reef id, got %+v", prepared)
	}
}

func TestPrepareRowsDuplicateStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DuplicateStrategy = DuplicateStrict
	_, _, err := PrepareRows(cfg, []Row{
		{ReefID: "x", Columns: map[string]interface{}{"a": 1}},
		{ReefID: "x", Columns: map[string]interface{}{"a": 2}},
	})
	if err == nil {
		t.Fatalf("expected error on duplicate reef id under Strict")
	}
}

func TestPrepareRowsDuplicateSkip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DuplicateStrategy = DuplicateSkip
	prepared, dropped, err := PrepareRows(cfg, []Row{
		{ReefID: "x", Columns: map[string]interface{}{"a": 1}},
		{ReefID: "x", Columns: map[string]interface{}{"a": 2}},
	})
	if err != nil {
		t.Fatalf("PrepareRows: %v", err)
	}
	if len(prepared) != 1 {
		t.Fatalf("expected first occurrence to survive, got %+v", prepared)
	}
	if len(dropped) != 1 {
		t.Fatalf("expected second occurrence dropped, got %d", len(dropped))
	}
}

func TestPrepareRowsReefIDNormalization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReefIDNormalization = "Trim,Lowercase"
	prepared, _, err := PrepareRows(cfg, []Row{{ReefID: "  ABC  ", Columns: map[string]interface{}{"a": 1}}})
	if err != nil {
		t.Fatalf("PrepareRows: %v", err)
	}
	if prepared[0].ReefID != "abc" {
		t.Fatalf("expected normalised reef id 'abc', got %q", prepared[0].ReefID)
	}
}

// TestClassifyExample mirrors a worked example: previous state
// has A and B, the new pull has A (unchanged) and C (new) — so B is deleted.
func TestClassifyExample(t *testing.T) {
	previous := map[string]string{"A": "H1", "B": "H2"}
	current := []PreparedRow{
		{ReefID: "A", RowHash: "H1"},
		{ReefID: "C", RowHash: "H3"},
	}

	c := Classify(current, previous)

	if len(c.NewRows) != 1 || c.NewRows[0] != "C" {
		t.Fatalf("expected New=[C], got %v", c.NewRows)
	}
	if len(c.UnchangedRows) != 1 || c.UnchangedRows[0] != "A" {
		t.Fatalf("expected Unchanged=[A], got %v", c.UnchangedRows)
	}
	if len(c.ChangedRows) != 0 {
		t.Fatalf("expected no changed rows, got %v", c.ChangedRows)
	}
	if len(c.DeletedIDs) != 1 || c.DeletedIDs[0] != "B" {
		t.Fatalf("expected Deleted=[B], got %v", c.DeletedIDs)
	}
}

func TestClassifyChangedRow(t *testing.T) {
	previous := map[string]string{"A": "H1"}
	current := []PreparedRow{{ReefID: "A", RowHash: "H2"}}

	c := Classify(current, previous)
	if len(c.ChangedRows) != 1 || c.ChangedRows[0] != "A" {
		t.Fatalf("expected Changed=[A], got %v", c.ChangedRows)
	}
}

// fakeStore is an in-memory StateStore for Engine tests.
type fakeStore struct {
	active      map[uuid.UUID]map[string]string
	deleted     map[uuid.UUID]map[string]bool
	schema      map[uuid.UUID][]string
	schemaSet   map[uuid.UUID]bool
	commitCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		active:    make(map[uuid.UUID]map[string]string),
		deleted:   make(map[uuid.UUID]map[string]bool),
		schema:    make(map[uuid.UUID][]string),
		schemaSet: make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) LoadActive(ctx context.Context, profileID uuid.UUID) (map[string]string, error) {
	out := make(map[string]string)
	for id, h := range f.active[profileID] {
		if !f.deleted[profileID][id] {
			out[id] = h
		}
	}
	return out, nil
}

func (f *fakeStore) Commit(ctx context.Context, profileID, executionID uuid.UUID, hashes map[string]string, deletedIDs []string, trackDeletes bool, now time.Time) error {
	f.commitCalls++
	if f.active[profileID] == nil {
		f.active[profileID] = make(map[string]string)
	}
	if f.deleted[profileID] == nil {
		f.deleted[profileID] = make(map[string]bool)
	}
	for id, h := range hashes {
		f.active[profileID][id] = h
		f.deleted[profileID][id] = false
	}
	if trackDeletes {
		for _, id := range deletedIDs {
			f.deleted[profileID][id] = true
		}
	}
	return nil
}

func (f *fakeStore) ResetAll(ctx context.Context, profileID uuid.UUID) error {
	delete(f.active, profileID)
	delete(f.deleted, profileID)
	return nil
}

func (f *fakeStore) ResetRows(ctx context.Context, profileID uuid.UUID, reefIDs []string) error {
	for _, id := range reefIDs {
		delete(f.active[profileID], id)
	}
	return nil
}

func (f *fakeStore) GenerateBaseline(ctx context.Context, profileID uuid.UUID, hashes map[string]string, now time.Time) error {
	f.active[profileID] = hashes
	f.deleted[profileID] = make(map[string]bool)
	return nil
}

func (f *fakeStore) PurgeRetention(ctx context.Context, profileID uuid.UUID, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) SchemaColumns(ctx context.Context, profileID uuid.UUID) ([]string, bool, error) {
	return f.schema[profileID], f.schemaSet[profileID], nil
}

func (f *fakeStore) SetSchemaColumns(ctx context.Context, profileID uuid.UUID, columns []string, now time.Time) error {
	f.schema[profileID] = columns
	f.schemaSet[profileID] = true
	return nil
}

func TestEnginePrepareAndCommitLifecycle(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store)
	profileID := uuid.New()
	cfg := DefaultConfig()
	cfg.TrackDeletes = true

	// First run: A and B both new.
	plan, err := engine.Prepare(context.Background(), profileID, uuid.New(), cfg, []Row{
		{ReefID: "A", Columns: map[string]interface{}{"v": 1}},
		{ReefID: "B", Columns: map[string]interface{}{"v": 2}},
	}, []string{"v"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(plan.Classification.NewRows) != 2 {
		t.Fatalf("expected 2 new rows on first run, got %v", plan.Classification.NewRows)
	}
	if err := engine.Commit(context.Background(), plan); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Second run: A unchanged, B gone, C new.
	plan2, err := engine.Prepare(context.Background(), profileID, uuid.New(), cfg, []Row{
		{ReefID: "A", Columns: map[string]interface{}{"v": 1}},
		{ReefID: "C", Columns: map[string]interface{}{"v": 3}},
	}, []string{"v"})
	if err != nil {
		t.Fatalf("Prepare (2nd): %v", err)
	}
	if len(plan2.Classification.UnchangedRows) != 1 || plan2.Classification.UnchangedRows[0] != "A" {
		t.Fatalf("expected A unchanged, got %v", plan2.Classification.UnchangedRows)
	}
	if len(plan2.Classification.NewRows) != 1 || plan2.Classification.NewRows[0] != "C" {
		t.Fatalf("expected C new, got %v", plan2.Classification.NewRows)
	}
	if len(plan2.Classification.DeletedIDs) != 1 || plan2.Classification.DeletedIDs[0] != "B" {
		t.Fatalf("expected B deleted, got %v", plan2.Classification.DeletedIDs)
	}

	// Discarding the plan (simulating a failed delivery) must not mutate state.
	activeBefore := len(store.active[profileID])
	if activeBefore != 2 {
		t.Fatalf("expected state untouched by Prepare, got %d active rows", activeBefore)
	}

	if err := engine.Commit(context.Background(), plan2); err != nil {
		t.Fatalf("Commit (2nd): %v", err)
	}
	active, err := store.LoadActive(context.Background(), profileID)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if _, ok := active["B"]; ok {
		t.Fatalf("expected B to be marked deleted and excluded from active state")
	}
	if _, ok := active["A"]; !ok {
		t.Fatalf("expected A to remain active")
	}
	if _, ok := active["C"]; !ok {
		t.Fatalf("expected C to be active")
	}
}

func TestEngineResetOnSchemaChange(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store)
	profileID := uuid.New()
	cfg := DefaultConfig()
	cfg.ResetOnSchemaChange = true

	plan, err := engine.Prepare(context.Background(), profileID, uuid.New(), cfg, []Row{
		{ReefID: "A", Columns: map[string]interface{}{"v": 1}},
	}, []string{"v"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := engine.Commit(context.Background(), plan); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Schema changes from ["v"] to ["v", "w"] -> state must reset, so A is "new" again.
	plan2, err := engine.Prepare(context.Background(), profileID, uuid.New(), cfg, []Row{
		{ReefID: "A", Columns: map[string]interface{}{"v": 1, "w": 2}},
	}, []string{"v", "w"})
	if err != nil {
		t.Fatalf("Prepare (2nd): %v", err)
	}
	if len(plan2.Classification.NewRows) != 1 || plan2.Classification.NewRows[0] != "A" {
		t.Fatalf("expected A reclassified as new after schema reset, got %v", plan2.Classification.NewRows)
	}
}

func TestEngineGenerateBaseline(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store)
	profileID := uuid.New()
	cfg := DefaultConfig()

	err := engine.GenerateBaseline(context.Background(), cfg, profileID, []Row{
		{ReefID: "A", Columns: map[string]interface{}{"v": 1}},
		{ReefID: "B", Columns: map[string]interface{}{"v": 2}},
	})
	if err != nil {
		t.Fatalf("GenerateBaseline: %v", err)
	}

	active, err := store.LoadActive(context.Background(), profileID)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 baseline rows, got %d", len(active))
	}

	// A subsequent run against the baseline sees no new/changed rows.
	plan, err := engine.Prepare(context.Background(), profileID, uuid.New(), cfg, []Row{
		{ReefID: "A", Columns: map[string]interface{}{"v": 1}},
		{ReefID: "B", Columns: map[string]interface{}{"v": 2}},
	}, []string{"v"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(plan.Classification.NewRows) != 0 || len(plan.Classification.ChangedRows) != 0 {
		t.Fatalf("expected baseline rows to read as unchanged, got %+v", plan.Classification)
	}
}

func TestEngineResetRows(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store)
	profileID := uuid.New()

	store.active[profileID] = map[string]string{"A": "H1", "B": "H2"}
	store.deleted[profileID] = map[string]bool{}

	if err := engine.ResetRows(context.Background(), profileID, []string{"A"}); err != nil {
		t.Fatalf("ResetRows: %v", err)
	}
	active, _ := store.LoadActive(context.Background(), profileID)
	if _, ok := active["A"]; ok {
		t.Fatalf("expected A removed")
	}
	if _, ok := active["B"]; !ok {
		t.Fatalf("expected B to remain")
	}
}
