package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository returns an ExecutionRepository backed by db.
func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &gormExecutionRepository{db: db}
}

func (r *gormExecutionRepository) Create(ctx context.Context, e *Execution) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("executions: create: %w", err)
	}
	return nil
}

func (r *gormExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Execution, error) {
	var e Execution
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("executions: get by id: %w", err)
	}
	splits, err := r.ListSplitsByExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Splits = splits
	return &e, nil
}

func (r *gormExecutionRepository) Update(ctx context.Context, e *Execution) error {
	result := r.db.WithContext(ctx).Save(e)
	if result.Error != nil {
		return fmt.Errorf("executions: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormExecutionRepository) List(ctx context.Context, opts ListOptions) ([]Execution, int64, error) {
	var executions []Execution
	var total int64

	if err := r.db.WithContext(ctx).Model(&Execution{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("started_at DESC").
		Find(&executions).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list: %w", err)
	}

	return executions, total, nil
}

func (r *gormExecutionRepository) ListByProfile(ctx context.Context, profileID uuid.UUID, opts ListOptions) ([]Execution, int64, error) {
	var executions []Execution
	var total int64

	q := r.db.WithContext(ctx).Model(&Execution{}).Where("profile_id = ?", profileID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list by profile count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("started_at DESC").
		Find(&executions).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list by profile: %w", err)
	}

	return executions, total, nil
}

// HasRecentSuccess backs internal/depgraph.ExecutionProbe through the
// scheduler's context-binding adapter (the depgraph method takes no ctx).
func (r *gormExecutionRepository) HasRecentSuccess(ctx context.Context, profileID uuid.UUID, windowSeconds int64) (bool, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(windowSeconds) * time.Second)
	var count int64
	err := r.db.WithContext(ctx).Model(&Execution{}).
		Where("profile_id = ? AND status = ? AND completed_at >= ?", profileID, StatusSuccess, cutoff).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("executions: has recent success: %w", err)
	}
	return count > 0, nil
}

func (r *gormExecutionRepository) CreateSplit(ctx context.Context, s *ExecutionSplit) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("execution_splits: create: %w", err)
	}
	return nil
}

func (r *gormExecutionRepository) ListSplitsByExecution(ctx context.Context, executionID uuid.UUID) ([]ExecutionSplit, error) {
	var splits []ExecutionSplit
	if err := r.db.WithContext(ctx).Where("execution_id = ?", executionID).Order("created_at ASC").Find(&splits).Error; err != nil {
		return nil, fmt.Errorf("execution_splits: list by execution: %w", err)
	}
	return splits, nil
}

func (r *gormExecutionRepository) UpdateSplit(ctx context.Context, s *ExecutionSplit) error {
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		return fmt.Errorf("execution_splits: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
