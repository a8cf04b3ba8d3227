package scheduler

import (
	"context"

	"github.com/google/uuid"

	"github.com/reefdata/reef/internal/catalog"
)

// Executor runs a single profile to completion. Implemented by a thin
// adapter over internal/profilepipeline (export profiles) and
// internal/importpipeline (import profiles) in cmd/reefd, so the scheduler
// itself never depends on either pipeline package directly.
type Executor interface {
	RunProfile(ctx context.Context, profileID uuid.UUID, triggeredBy catalog.TriggeredBy) error
}

// ctxDependencyRepo adapts the catalog's ctx-aware DependencyRepository to
// internal/depgraph's non-ctx EdgeSource interface, binding a single ctx for
// the duration of one dependency-resolution call.
type ctxDependencyRepo struct {
	ctx  context.Context
	deps catalog.DependencyRepository
}

func (a ctxDependencyRepo) Prerequisites(dependent uuid.UUID) ([]uuid.UUID, error) {
	return a.deps.Prerequisites(a.ctx, dependent)
}

func (a ctxDependencyRepo) Dependents(prerequisite uuid.UUID) ([]uuid.UUID, error) {
	return a.deps.Dependents(a.ctx, prerequisite)
}

// ctxExecutionProbe adapts the catalog's ctx-aware ExecutionRepository to
// internal/depgraph's non-ctx ExecutionProbe interface.
type ctxExecutionProbe struct {
	ctx   context.Context
	execs catalog.ExecutionRepository
}

func (a ctxExecutionProbe) HasRecentSuccess(profileID uuid.UUID, windowSeconds int64) (bool, error) {
	return a.execs.HasRecentSuccess(a.ctx, profileID, windowSeconds)
}
