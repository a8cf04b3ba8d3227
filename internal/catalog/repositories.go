package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// ConnectionRepository manages Connection records.
type ConnectionRepository interface {
	Create(ctx context.Context, c *Connection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Connection, error)
	Update(ctx context.Context, c *Connection) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]Connection, int64, error)
}

// DestinationRepository manages Destination records.
type DestinationRepository interface {
	Create(ctx context.Context, d *Destination) error
	GetByID(ctx context.Context, id uuid.UUID) (*Destination, error)
	Update(ctx context.Context, d *Destination) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]Destination, int64, error)
}

// ProfileRepository manages export Profile records.
type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByCode(ctx context.Context, code string) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]Profile, int64, error)
	ListEnabled(ctx context.Context) ([]Profile, error)
	ListDueForSchedule(ctx context.Context, now time.Time) ([]Profile, error)
	UpdateLastExecutedAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ImportProfileRepository manages ImportProfile records.
type ImportProfileRepository interface {
	Create(ctx context.Context, p *ImportProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*ImportProfile, error)
	GetByCode(ctx context.Context, code string) (*ImportProfile, error)
	Update(ctx context.Context, p *ImportProfile) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]ImportProfile, int64, error)
	ListEnabled(ctx context.Context) ([]ImportProfile, error)
	UpdateLastExecutedAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// DependencyRepository manages Dependency edges, backing internal/depgraph's
// EdgeSource interface.
type DependencyRepository interface {
	Create(ctx context.Context, d *Dependency) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteEdge(ctx context.Context, dependent, prerequisite uuid.UUID) error
	Prerequisites(ctx context.Context, dependent uuid.UUID) ([]uuid.UUID, error)
	Dependents(ctx context.Context, prerequisite uuid.UUID) ([]uuid.UUID, error)
	ListAll(ctx context.Context) ([]Dependency, error)
}

// ExecutionRepository manages Execution and ExecutionSplit records.
type ExecutionRepository interface {
	Create(ctx context.Context, e *Execution) error
	GetByID(ctx context.Context, id uuid.UUID) (*Execution, error)
	Update(ctx context.Context, e *Execution) error
	List(ctx context.Context, opts ListOptions) ([]Execution, int64, error)
	ListByProfile(ctx context.Context, profileID uuid.UUID, opts ListOptions) ([]Execution, int64, error)
	HasRecentSuccess(ctx context.Context, profileID uuid.UUID, windowSeconds int64) (bool, error)

	CreateSplit(ctx context.Context, s *ExecutionSplit) error
	ListSplitsByExecution(ctx context.Context, executionID uuid.UUID) ([]ExecutionSplit, error)
	UpdateSplit(ctx context.Context, s *ExecutionSplit) error
}

// DeltaStateRepository manages DeltaState and DeltaSchema records, backing
// internal/delta's StateStore interface.
type DeltaStateRepository interface {
	LoadActive(ctx context.Context, profileID uuid.UUID) (map[string]string, error)
	Commit(ctx context.Context, profileID, executionID uuid.UUID, hashes map[string]string, deletedIDs []string, trackDeletes bool, now time.Time) error
	ResetAll(ctx context.Context, profileID uuid.UUID) error
	ResetRows(ctx context.Context, profileID uuid.UUID, reefIDs []string) error
	GenerateBaseline(ctx context.Context, profileID uuid.UUID, hashes map[string]string, now time.Time) error
	PurgeRetention(ctx context.Context, profileID uuid.UUID, cutoff time.Time) (int64, error)
	SchemaColumns(ctx context.Context, profileID uuid.UUID) ([]string, bool, error)
	SetSchemaColumns(ctx context.Context, profileID uuid.UUID, columns []string, now time.Time) error
}

// JobRepository manages scheduling envelope Job records.
type JobRepository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	Update(ctx context.Context, j *Job) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]Job, int64, error)
	ListEnabled(ctx context.Context) ([]Job, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, lastRun, nextRun *time.Time) error
	RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error
}

// WebhookRepository manages WebhookTrigger records.
type WebhookRepository interface {
	Create(ctx context.Context, w *WebhookTrigger) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*WebhookTrigger, error)
	GetByID(ctx context.Context, id uuid.UUID) (*WebhookTrigger, error)
	Update(ctx context.Context, w *WebhookTrigger) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]WebhookTrigger, int64, error)
	RecordTrigger(ctx context.Context, id uuid.UUID, at time.Time) error
}
