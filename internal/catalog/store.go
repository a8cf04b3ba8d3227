package catalog

import "gorm.io/gorm"

// Store aggregates every repository over a single *gorm.DB, the way the
// teacher's cmd/server/main.go wires its repository.New* calls together.
type Store struct {
	DB *gorm.DB

	Connections    ConnectionRepository
	Destinations   DestinationRepository
	Profiles       ProfileRepository
	ImportProfiles ImportProfileRepository
	Dependencies   DependencyRepository
	Executions     ExecutionRepository
	DeltaState     DeltaStateRepository
	Jobs           JobRepository
	Webhooks       WebhookRepository
}

// NewStore opens the catalog database (migrating it) and wires every
// repository on top of the resulting connection.
func NewStore(cfg Config) (*Store, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	return &Store{
		DB:             db,
		Connections:    NewConnectionRepository(db),
		Destinations:   NewDestinationRepository(db),
		Profiles:       NewProfileRepository(db),
		ImportProfiles: NewImportProfileRepository(db),
		Dependencies:   NewDependencyRepository(db),
		Executions:     NewExecutionRepository(db),
		DeltaState:     NewDeltaStateRepository(db),
		Jobs:           NewJobRepository(db),
		Webhooks:       NewWebhookRepository(db),
	}, nil
}
