// Package catalog is the persistent store for Reef: connections, destinations,
// profiles, import profiles, dependencies, executions, delta-sync state, jobs
// and webhook triggers. It is a GORM schema, migrated on startup via
// golang-migrate from the embedded migrations directory, following the same
// shape as internal/db.
package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the fields shared by every catalog entity. ID uses UUID v7
// (time-ordered) so the primary key doubles as a natural creation-order sort.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// softDelete extends base with GORM's soft-delete column.
type softDelete struct {
	base
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// ConnectionKind enumerates the supported source/target RDBMS dialects.
type ConnectionKind string

const (
	ConnectionSqlServer ConnectionKind = "SqlServer"
	ConnectionMySQL     ConnectionKind = "MySQL"
	ConnectionPostgres  ConnectionKind = "PostgreSQL"
)

// Connection references an external database. ConnectionString is stored as
// hybrid-encrypted ciphertext (see internal/encryption) behind the "PWENC:"
// marker via the EncryptedString scanner below.
type Connection struct {
	softDelete
	Name             string         `gorm:"uniqueIndex;not null"`
	Kind             ConnectionKind `gorm:"not null"`
	ConnectionString EncryptedString `gorm:"type:text;not null"`
	Active           bool           `gorm:"not null;default:true"`
	IntegrityHash    string         `gorm:"not null;default:''"`
}

// -----------------------------------------------------------------------------
// Destination
// -----------------------------------------------------------------------------

// DestinationKind enumerates delivery endpoint types.
type DestinationKind string

const (
	DestinationLocal        DestinationKind = "Local"
	DestinationFTP          DestinationKind = "FTP"
	DestinationSFTP         DestinationKind = "SFTP"
	DestinationS3           DestinationKind = "S3"
	DestinationAzureBlob    DestinationKind = "AzureBlob"
	DestinationHTTP         DestinationKind = "HTTP"
	DestinationEmail        DestinationKind = "Email"
	DestinationNetworkShare DestinationKind = "NetworkShare"
	DestinationWebDav       DestinationKind = "WebDav"
)

// Destination is a delivery endpoint. Configuration is stored as a JSON
// document whose secret leaves (per internal/encryption's per-kind allow
// list) are individually encrypted ("field-level ciphertext") unless the
// whole document begins with "PWENC:" ("whole-config ciphertext" — a legacy
// encoding the dispatcher must still be able to read).
type Destination struct {
	base
	Name          string          `gorm:"not null"`
	Kind          DestinationKind `gorm:"not null"`
	Configuration string          `gorm:"type:text;not null;default:'{}'"`
	Active        bool            `gorm:"not null;default:true"`
	IntegrityHash string          `gorm:"not null;default:''"`
}

// -----------------------------------------------------------------------------
// Profile (export)
// -----------------------------------------------------------------------------

type ScheduleKind string

const (
	ScheduleCron     ScheduleKind = "Cron"
	ScheduleInterval ScheduleKind = "Interval"
	ScheduleWebhook  ScheduleKind = "Webhook"
	ScheduleManual   ScheduleKind = "Manual"
)

// ZeroRowsPolicy governs phase 9 (post-process) behaviour when a profile's
// query returned no rows.
type ZeroRowsPolicy string

const (
	ZeroRowsSkip     ZeroRowsPolicy = "Skip"     // skip post-process, execution still succeeds
	ZeroRowsContinue ZeroRowsPolicy = "Continue" // run post-process anyway
	ZeroRowsFail     ZeroRowsPolicy = "Fail"     // fail the execution
)

// Profile is a unit of scheduled export work. Association fields
// (ConnectionID, DestinationID) are plain UUID columns rather than GORM
// belongs-to associations — GORM cannot resolve foreign keys cleanly when
// the primary key is a custom uuid.UUID type, exactly the limitation the
// teacher's db.Policy comment documents. Related records are loaded via
// explicit repository queries instead.
type Profile struct {
	softDelete
	Code         string       `gorm:"uniqueIndex;not null"` // "P-XXXX"
	Name         string       `gorm:"not null"`
	ConnectionID uuid.UUID    `gorm:"type:text;not null;index"`
	GroupID      *uuid.UUID   `gorm:"type:text;index"`
	Query        string       `gorm:"type:text;not null"`
	ScheduleKind ScheduleKind `gorm:"not null;default:'Manual'"`
	CronExpr     string       `gorm:"default:''"`
	IntervalMins int          `gorm:"default:0"`

	OutputFormat      string    `gorm:"not null;default:'csv'"`
	DestinationID     uuid.UUID `gorm:"type:text;not null;index"`
	TemplateID        *uuid.UUID `gorm:"type:text"`
	TemplateKind      string    `gorm:"default:''"` // "", "ForXml", "ForJson", "Scriban", "Xslt", "Document"
	TransformOptions  string    `gorm:"type:text;default:'{}'"`

	PreProcessJSON  string `gorm:"type:text;default:''"`
	PostProcessJSON string `gorm:"type:text;default:''"`

	SplitEnabled         bool   `gorm:"not null;default:false"`
	SplitKeyColumn       string `gorm:"default:''"`
	SplitFilenameTmpl    string `gorm:"default:'{profile}_{splitkey}_{timestamp}.{format}'"`
	SplitBatchSize       int    `gorm:"not null;default:0"`
	SplitPostProcessEach bool   `gorm:"not null;default:false"`

	IsEmailExport         bool   `gorm:"not null;default:false"`
	EmailRecipientsColumn string `gorm:"default:''"`
	EmailRecipientsHard   string `gorm:"default:''"`
	EmailCC               string `gorm:"default:''"`
	EmailSubject          string `gorm:"default:''"`
	EmailAttachmentJSON   string `gorm:"type:text;default:'{}'"`
	EmailApprovalRequired bool   `gorm:"not null;default:false"`
	EmailSuccessThreshold int    `gorm:"not null;default:100"` // percent

	DeltaEnabled     bool   `gorm:"not null;default:false"`
	DeltaConfigJSON  string `gorm:"type:text;default:'{}'"`

	OnZeroRows        ZeroRowsPolicy `gorm:"not null;default:'Skip'"`
	SkipOnFailure     bool           `gorm:"not null;default:false"` // post-process failure doesn't fail the whole export
	RollbackOnFailure bool           `gorm:"not null;default:false"` // compensate already-delivered files on post-process failure

	Enabled       bool   `gorm:"not null;default:true"`
	IntegrityHash string `gorm:"not null;default:''"`

	LastExecutedAt *time.Time
}

// -----------------------------------------------------------------------------
// ImportProfile
// -----------------------------------------------------------------------------

type LoadStrategy string

const (
	LoadInsert      LoadStrategy = "Insert"
	LoadUpsert      LoadStrategy = "Upsert"
	LoadFullReplace LoadStrategy = "FullReplace"
	LoadAppend      LoadStrategy = "Append"
)

type FailurePolicy string

const (
	PolicyFail     FailurePolicy = "Fail"
	PolicySkip     FailurePolicy = "Skip"
	PolicyContinue FailurePolicy = "Continue"
)

type ImportTargetKind string

const (
	TargetDatabase  ImportTargetKind = "Database"
	TargetLocalFile ImportTargetKind = "LocalFile"
)

// ColumnMapping describes a single source->target field translation for an
// ImportProfile. Stored as a JSON array in ImportProfile.ColumnMappingsJSON.
type ColumnMapping struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	DataType   string `json:"datatype"` // int, decimal, bool, datetime, string
	Default    string `json:"default"`
	SkipOnNull bool   `json:"skip_on_null"`
	IsKey      bool   `json:"is_key"`
}

// ImportProfile mirrors Profile for ingestion.
type ImportProfile struct {
	softDelete
	Code         string       `gorm:"uniqueIndex;not null"`
	Name         string       `gorm:"not null"`
	GroupID      *uuid.UUID   `gorm:"type:text;index"`
	ScheduleKind ScheduleKind `gorm:"not null;default:'Manual'"`
	CronExpr     string       `gorm:"default:''"`
	IntervalMins int          `gorm:"default:0"`

	SourceKind          DestinationKind `gorm:"not null"`
	SourceConfiguration string          `gorm:"type:text;not null;default:'{}'"`
	FilePattern         string          `gorm:"default:'*'"`
	SelectionRule       string          `gorm:"default:'All'"` // Oldest, Newest, All
	ArchiveAfterImport  bool            `gorm:"not null;default:false"`

	SourceFormat       string `gorm:"not null;default:'csv'"` // csv,json,xml,fixedwidth
	FormatConfigJSON   string `gorm:"type:text;default:'{}'"`
	ColumnMappingsJSON string `gorm:"type:text;not null;default:'[]'"`

	TargetKind       ImportTargetKind `gorm:"not null;default:'Database'"`
	TargetConnID     *uuid.UUID       `gorm:"type:text"`
	TargetTable      string           `gorm:"default:''"`
	TargetLocalPath  string           `gorm:"default:''"`
	TargetLocalFmt   string           `gorm:"default:''"`
	TargetWriteMode  string           `gorm:"default:'Overwrite'"` // Overwrite, Append

	LoadStrategy     LoadStrategy `gorm:"not null;default:'Insert'"`
	UpsertKeyColumns string       `gorm:"default:''"` // comma-separated
	BatchSize        int          `gorm:"not null;default:500"`

	OnSourceFailure           FailurePolicy `gorm:"not null;default:'Fail'"`
	OnParseFailure            FailurePolicy `gorm:"not null;default:'Fail'"`
	OnRowFailure              FailurePolicy `gorm:"not null;default:'Fail'"`
	OnConstraintViolation     FailurePolicy `gorm:"not null;default:'Fail'"`
	MaxFailedRowsBeforeAbort  int           `gorm:"not null;default:0"` // 0 = unlimited
	MaxFailedRowsPercent      float64       `gorm:"not null;default:0"`
	RollbackOnAbort           bool          `gorm:"not null;default:true"`
	RetryCount                int           `gorm:"not null;default:3"`

	DeleteStrategy  string `gorm:"default:'Soft'"` // Soft, Hard
	PreProcessJSON  string `gorm:"type:text;default:''"`
	PostProcessJSON string `gorm:"type:text;default:''"`
	SkipOnFailure   bool   `gorm:"not null;default:false"`

	DeltaEnabled    bool   `gorm:"not null;default:false"`
	DeltaConfigJSON string `gorm:"type:text;default:'{}'"`

	Enabled       bool   `gorm:"not null;default:true"`
	IntegrityHash string `gorm:"not null;default:''"`

	LastExecutedAt *time.Time
}

// -----------------------------------------------------------------------------
// Dependency
// -----------------------------------------------------------------------------

// Dependency is a directed edge: DependentProfileID depends on
// PrerequisiteProfileID. The set of edges over all enabled profiles must
// form a DAG — enforced at write time by internal/depgraph.
type Dependency struct {
	base
	DependentProfileID    uuid.UUID `gorm:"type:text;not null;index"`
	PrerequisiteProfileID uuid.UUID `gorm:"type:text;not null;index"`
	ExecutionOrder        int       `gorm:"not null;default:0"`
}

// -----------------------------------------------------------------------------
// Execution
// -----------------------------------------------------------------------------

type ExecutionStatus string

const (
	StatusRunning        ExecutionStatus = "Running"
	StatusSuccess        ExecutionStatus = "Success"
	StatusPartialSuccess ExecutionStatus = "PartialSuccess"
	StatusFailed         ExecutionStatus = "Failed"
	StatusAborted        ExecutionStatus = "Aborted"
	StatusCancelled      ExecutionStatus = "Cancelled"
)

type TriggeredBy string

const (
	TriggerManual     TriggeredBy = "Manual"
	TriggerSchedule   TriggeredBy = "Schedule"
	TriggerWebhook    TriggeredBy = "Webhook"
	TriggerDependency TriggeredBy = "Dependency"
)

// Execution records one attempt of a Profile or ImportProfile run.
type Execution struct {
	base
	ProfileID       uuid.UUID       `gorm:"type:text;not null;index"`
	IsImport        bool            `gorm:"not null;default:false"`
	Status          ExecutionStatus `gorm:"not null;default:'Running'"`
	TriggeredBy     TriggeredBy     `gorm:"not null;default:'Manual'"`
	StartedAt       time.Time       `gorm:"not null"`
	CompletedAt     *time.Time
	RowsRead        int64  `gorm:"not null;default:0"`
	RowsInserted    int64  `gorm:"not null;default:0"`
	RowsUpdated     int64  `gorm:"not null;default:0"`
	RowsSkipped     int64  `gorm:"not null;default:0"`
	RowsFailed      int64  `gorm:"not null;default:0"`
	RowsDeleted     int64  `gorm:"not null;default:0"`
	BytesProcessed  int64  `gorm:"not null;default:0"`
	CurrentPhase    string `gorm:"default:''"`
	ErrorMessage    string `gorm:"type:text;default:''"`
	PhaseTimingJSON string `gorm:"type:text;default:'{}'"`

	// Splits is populated by repository queries, not by GORM association
	// resolution (same uuid.UUID foreign-key limitation as Profile).
	Splits []ExecutionSplit `gorm:"-"`
}

// ExecutionSplit records the outcome of one split/email artifact within an
// Execution.
type ExecutionSplit struct {
	base
	ExecutionID uuid.UUID       `gorm:"type:text;not null;index"`
	SplitKey    string          `gorm:"not null;default:''"`
	Status      ExecutionStatus `gorm:"not null;default:'Success'"`
	RowCount    int64           `gorm:"not null;default:0"`
	CompletedAt *time.Time
	Error       string `gorm:"type:text;default:''"`
}

// -----------------------------------------------------------------------------
// Delta Sync State
// -----------------------------------------------------------------------------

// DeltaState is keyed by (ProfileID, ReefID). Rows are never hard-deleted on
// a "row disappeared" event — is_deleted is flipped instead, so
// GenerateBaseline / retention can reason about history.
type DeltaState struct {
	ProfileID           uuid.UUID `gorm:"type:text;primaryKey"`
	ReefID              string    `gorm:"primaryKey"`
	RowHash             string    `gorm:"not null"`
	FirstSeenAt         time.Time `gorm:"not null"`
	LastSeenAt          time.Time `gorm:"not null;index"`
	LastSeenExecutionID uuid.UUID `gorm:"type:text;not null"`
	IsDeleted           bool      `gorm:"not null;default:false;index"`
	DeletedAt           *time.Time
}

// DeltaSchema records the last-seen column set for a profile, used to detect
// schema drift when ResetOnSchemaChange is enabled.
type DeltaSchema struct {
	ProfileID  uuid.UUID `gorm:"type:text;primaryKey"`
	ColumnsCSV string    `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Job
// -----------------------------------------------------------------------------

// Job is a scheduling envelope composing one or more profiles.
type Job struct {
	softDelete
	Name                string     `gorm:"not null"`
	ProfileIDsCSV        string     `gorm:"type:text;not null;default:''"`
	Priority            int        `gorm:"not null;default:0"`
	AllowConcurrent     bool       `gorm:"not null;default:false"`
	TimeoutMinutes      int        `gorm:"not null;default:60"`
	MaxRetries          int        `gorm:"not null;default:0"`
	ConsecutiveFailures int        `gorm:"not null;default:0"`
	CircuitOpen         bool       `gorm:"not null;default:false"`
	IgnoreDependencies  bool       `gorm:"not null;default:false"`
	ScheduleKind        ScheduleKind `gorm:"not null;default:'Manual'"`
	CronExpr            string     `gorm:"default:''"`
	IntervalMins        int        `gorm:"not null;default:0"`
	Enabled             bool       `gorm:"not null;default:true"`
	NextRunTime         *time.Time `gorm:"index"`
	LastRunTime         *time.Time
}

// -----------------------------------------------------------------------------
// Webhook Trigger
// -----------------------------------------------------------------------------

type WebhookTargetKind string

const (
	WebhookTargetProfile       WebhookTargetKind = "Profile"
	WebhookTargetJob           WebhookTargetKind = "Job"
	WebhookTargetImportProfile WebhookTargetKind = "ImportProfile"
)

// WebhookTrigger authorizes an external caller to trigger a profile/job/
// import on demand. The raw token is never stored — only base64(sha256(token)).
type WebhookTrigger struct {
	base
	Name           string            `gorm:"not null"`
	TargetKind     WebhookTargetKind `gorm:"not null"`
	TargetID       uuid.UUID         `gorm:"type:text;not null;index"`
	TokenHash      string            `gorm:"uniqueIndex;not null"`
	Active         bool              `gorm:"not null;default:true"`
	MaxPerHour     int               `gorm:"not null;default:100"` // 0 = unlimited, 1 = once per window
	LastTriggeredAt *time.Time
	TriggerCount   int64 `gorm:"not null;default:0"`
}

// AllTables lists every model migrated by AutoMigrate fallback (used by
// test harnesses that open an in-memory SQLite catalog without running the
// embedded SQL migrations).
func AllTables() []interface{} {
	return []interface{}{
		&Connection{}, &Destination{}, &Profile{}, &ImportProfile{},
		&Dependency{}, &Execution{}, &ExecutionSplit{}, &DeltaState{},
		&DeltaSchema{}, &Job{}, &WebhookTrigger{},
	}
}
