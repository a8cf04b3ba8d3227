package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	_ "modernc.org/sqlite"
	gormsqlite "gorm.io/driver/sqlite"

	"github.com/reefdata/reef/internal/encryption"
)

// openTestDB opens an in-memory sqlite catalog and migrates it via
// AutoMigrate, bypassing the embedded golang-migrate SQL files (which
// target on-disk deployments). Shared cache keeps the in-memory database
// alive across the pooled connections GORM may open.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(AllTables()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	svc, err := encryption.Open(t.TempDir(), "test-master-secret")
	if err != nil {
		t.Fatalf("open encryption service: %v", err)
	}
	SetEncryptionService(svc)
	return db
}

func TestConnectionRepositoryCRUD(t *testing.T) {
	db := openTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	conn := &Connection{
		Name:             "primary",
		Kind:             ConnectionPostgres,
		ConnectionString: "host=localhost",
		Active:           true,
	}
	if err := repo.Create(ctx, conn); err != nil {
		t.Fatalf("create: %v", err)
	}
	if conn.ID == uuid.Nil {
		t.Fatalf("expected BeforeCreate to assign a UUID")
	}

	got, err := repo.GetByID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Name != "primary" {
		t.Fatalf("expected name 'primary', got %q", got.Name)
	}

	got.Name = "renamed"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := repo.GetByID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get by id (2): %v", err)
	}
	if again.Name != "renamed" {
		t.Fatalf("expected renamed, got %q", again.Name)
	}

	if err := repo.Delete(ctx, conn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, conn.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProfileRepositoryGetByCodeAndEnabled(t *testing.T) {
	db := openTestDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	p := &Profile{
		Code:          "P-0001",
		Name:          "nightly export",
		ConnectionID:  uuid.New(),
		DestinationID: uuid.New(),
		Query:         "SELECT 1",
		ScheduleKind:  ScheduleCron,
		CronExpr:      "0 2 * * *",
		Enabled:       true,
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	byCode, err := repo.GetByCode(ctx, "P-0001")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if byCode.ID != p.ID {
		t.Fatalf("expected same profile by code lookup")
	}

	enabled, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled profile, got %d", len(enabled))
	}

	if err := repo.UpdateLastExecutedAt(ctx, p.ID, time.Now().UTC()); err != nil {
		t.Fatalf("update last executed at: %v", err)
	}
}

func TestDependencyRepositoryPrerequisitesAndDependents(t *testing.T) {
	db := openTestDB(t)
	repo := NewDependencyRepository(db)
	ctx := context.Background()

	dependent := uuid.New()
	prereq := uuid.New()

	if err := repo.Create(ctx, &Dependency{DependentProfileID: dependent, PrerequisiteProfileID: prereq}); err != nil {
		t.Fatalf("create: %v", err)
	}

	prereqs, err := repo.Prerequisites(ctx, dependent)
	if err != nil {
		t.Fatalf("prerequisites: %v", err)
	}
	if len(prereqs) != 1 || prereqs[0] != prereq {
		t.Fatalf("expected [%v], got %v", prereq, prereqs)
	}

	dependents, err := repo.Dependents(ctx, prereq)
	if err != nil {
		t.Fatalf("dependents: %v", err)
	}
	if len(dependents) != 1 || dependents[0] != dependent {
		t.Fatalf("expected [%v], got %v", dependent, dependents)
	}
}

func TestDeltaStateRepositoryCommitAndLoad(t *testing.T) {
	db := openTestDB(t)
	repo := NewDeltaStateRepository(db)
	ctx := context.Background()

	profileID := uuid.New()
	execID := uuid.New()
	now := time.Now().UTC()

	err := repo.Commit(ctx, profileID, execID, map[string]string{"A": "H1", "B": "H2"}, nil, true, now)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	active, err := repo.LoadActive(ctx, profileID)
	if err != nil {
		t.Fatalf("load active: %v", err)
	}
	if len(active) != 2 || active["A"] != "H1" {
		t.Fatalf("expected 2 active rows with A=H1, got %v", active)
	}

	err = repo.Commit(ctx, profileID, execID, map[string]string{"A": "H1"}, []string{"B"}, true, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("commit (2nd): %v", err)
	}

	active, err = repo.LoadActive(ctx, profileID)
	if err != nil {
		t.Fatalf("load active (2nd): %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected B excluded after deletion, got %v", active)
	}
}

func TestDeltaStateRepositorySchemaColumns(t *testing.T) {
	db := openTestDB(t)
	repo := NewDeltaStateRepository(db)
	ctx := context.Background()

	profileID := uuid.New()
	_, existed, err := repo.SchemaColumns(ctx, profileID)
	if err != nil {
		t.Fatalf("schema columns: %v", err)
	}
	if existed {
		t.Fatalf("expected no recorded schema yet")
	}

	if err := repo.SetSchemaColumns(ctx, profileID, []string{"a", "b"}, time.Now().UTC()); err != nil {
		t.Fatalf("set schema columns: %v", err)
	}

	cols, existed, err := repo.SchemaColumns(ctx, profileID)
	if err != nil {
		t.Fatalf("schema columns (2nd): %v", err)
	}
	if !existed || len(cols) != 2 {
		t.Fatalf("expected [a b], got %v", cols)
	}
}

func TestJobRepositoryRecordOutcomeOpensCircuit(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	// MaxRetries is a per-cycle retry count consumed by the scheduler, not a
	// per-job override of the breaker threshold — it must have no bearing on
	// when the circuit opens.
	job := &Job{Name: "nightly", MaxRetries: 2, Enabled: true}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < DefaultCircuitBreakerThreshold-1; i++ {
		if err := repo.RecordOutcome(ctx, job.ID, false); err != nil {
			t.Fatalf("record outcome %d: %v", i, err)
		}
	}
	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.CircuitOpen {
		t.Fatalf("expected circuit to remain closed before reaching DefaultCircuitBreakerThreshold, MaxRetries must not shorten it")
	}

	if err := repo.RecordOutcome(ctx, job.ID, false); err != nil {
		t.Fatalf("record outcome (final): %v", err)
	}
	got, err = repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get by id (2nd): %v", err)
	}
	if !got.CircuitOpen {
		t.Fatalf("expected circuit open after DefaultCircuitBreakerThreshold consecutive failures")
	}

	if err := repo.RecordOutcome(ctx, job.ID, true); err != nil {
		t.Fatalf("record outcome success: %v", err)
	}
	got, err = repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get by id (3rd): %v", err)
	}
	if got.CircuitOpen || got.ConsecutiveFailures != 0 {
		t.Fatalf("expected circuit closed and failures reset after success, got %+v", got)
	}
}

func TestWebhookRepositoryRecordTrigger(t *testing.T) {
	db := openTestDB(t)
	repo := NewWebhookRepository(db)
	ctx := context.Background()

	w := &WebhookTrigger{
		Name:       "trigger-profile-x",
		TargetKind: WebhookTargetProfile,
		TargetID:   uuid.New(),
		TokenHash:  "deadbeef",
		Active:     true,
		MaxPerHour: 10,
	}
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.RecordTrigger(ctx, w.ID, time.Now().UTC()); err != nil {
		t.Fatalf("record trigger: %v", err)
	}

	got, err := repo.GetByTokenHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("get by token hash: %v", err)
	}
	if got.TriggerCount != 1 {
		t.Fatalf("expected trigger count 1, got %d", got.TriggerCount)
	}
}
