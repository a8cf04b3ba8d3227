package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormDependencyRepository struct {
	db *gorm.DB
}

// NewDependencyRepository returns a DependencyRepository backed by db.
func NewDependencyRepository(db *gorm.DB) DependencyRepository {
	return &gormDependencyRepository{db: db}
}

func (r *gormDependencyRepository) Create(ctx context.Context, d *Dependency) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("dependencies: create: %w", err)
	}
	return nil
}

func (r *gormDependencyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Dependency{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("dependencies: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormDependencyRepository) DeleteEdge(ctx context.Context, dependent, prerequisite uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("dependent_profile_id = ? AND prerequisite_profile_id = ?", dependent, prerequisite).
		Delete(&Dependency{})
	if result.Error != nil {
		return fmt.Errorf("dependencies: delete edge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Prerequisites backs internal/depgraph.EdgeSource through the scheduler's
// context-binding adapter (the depgraph method takes no ctx).
func (r *gormDependencyRepository) Prerequisites(ctx context.Context, dependent uuid.UUID) ([]uuid.UUID, error) {
	var rows []Dependency
	if err := r.db.WithContext(ctx).Where("dependent_profile_id = ?", dependent).Order("execution_order ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("dependencies: prerequisites: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.PrerequisiteProfileID)
	}
	return ids, nil
}

// Dependents backs internal/depgraph.EdgeSource through the scheduler's
// context-binding adapter (the depgraph method takes no ctx).
func (r *gormDependencyRepository) Dependents(ctx context.Context, prerequisite uuid.UUID) ([]uuid.UUID, error) {
	var rows []Dependency
	if err := r.db.WithContext(ctx).Where("prerequisite_profile_id = ?", prerequisite).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("dependencies: dependents: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.DependentProfileID)
	}
	return ids, nil
}

func (r *gormDependencyRepository) ListAll(ctx context.Context) ([]Dependency, error) {
	var rows []Dependency
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("dependencies: list all: %w", err)
	}
	return rows, nil
}
