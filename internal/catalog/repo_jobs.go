package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormJobRepository struct {
	db *gorm.DB
}

// NewJobRepository returns a JobRepository backed by db.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &gormJobRepository{db: db}
}

func (r *gormJobRepository) Create(ctx context.Context, j *Job) error {
	if err := r.db.WithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("jobs: create: %w", err)
	}
	return nil
}

func (r *gormJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("jobs: get by id: %w", err)
	}
	return &j, nil
}

func (r *gormJobRepository) Update(ctx context.Context, j *Job) error {
	result := r.db.WithContext(ctx).Save(j)
	if result.Error != nil {
		return fmt.Errorf("jobs: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Job{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("jobs: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormJobRepository) List(ctx context.Context, opts ListOptions) ([]Job, int64, error) {
	var jobs []Job
	var total int64

	if err := r.db.WithContext(ctx).Model(&Job{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("jobs: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("priority DESC, created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("jobs: list: %w", err)
	}

	return jobs, total, nil
}

func (r *gormJobRepository) ListEnabled(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := r.db.WithContext(ctx).Where("enabled = ? AND circuit_open = ?", true, false).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("jobs: list enabled: %w", err)
	}
	return jobs, nil
}

func (r *gormJobRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, lastRun, nextRun *time.Time) error {
	result := r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]interface{}{"last_run_time": lastRun, "next_run_time": nextRun})
	if result.Error != nil {
		return fmt.Errorf("jobs: update schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DefaultCircuitBreakerThreshold is the consecutive-failure count at which a
// job is disabled. Fixed, not overridable per job: MaxRetries governs
// per-cycle retries (see internal/scheduler), never job-level disabling.
const DefaultCircuitBreakerThreshold = 10

// RecordOutcome implements the circuit-breaker bookkeeping: a failure
// increments ConsecutiveFailures and — once it reaches
// DefaultCircuitBreakerThreshold — opens the circuit; a success resets the
// counter and closes the circuit.
func (r *gormJobRepository) RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j Job
		if err := tx.First(&j, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("jobs: record outcome: load: %w", err)
		}

		updates := map[string]interface{}{}
		if success {
			updates["consecutive_failures"] = 0
			updates["circuit_open"] = false
		} else {
			failures := j.ConsecutiveFailures + 1
			updates["consecutive_failures"] = failures
			if failures >= DefaultCircuitBreakerThreshold {
				updates["circuit_open"] = true
			}
		}
		if err := tx.Model(&Job{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("jobs: record outcome: update: %w", err)
		}
		return nil
	})
}
