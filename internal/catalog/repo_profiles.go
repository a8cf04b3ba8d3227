package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository returns a ProfileRepository backed by db.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &gormProfileRepository{db: db}
}

func (r *gormProfileRepository) Create(ctx context.Context, p *Profile) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("profiles: create: %w", err)
	}
	return nil
}

func (r *gormProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profiles: get by id: %w", err)
	}
	return &p, nil
}

func (r *gormProfileRepository) GetByCode(ctx context.Context, code string) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profiles: get by code: %w", err)
	}
	return &p, nil
}

func (r *gormProfileRepository) Update(ctx context.Context, p *Profile) error {
	result := r.db.WithContext(ctx).Save(p)
	if result.Error != nil {
		return fmt.Errorf("profiles: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Profile{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("profiles: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormProfileRepository) List(ctx context.Context, opts ListOptions) ([]Profile, int64, error) {
	var profiles []Profile
	var total int64

	if err := r.db.WithContext(ctx).Model(&Profile{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("profiles: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&profiles).Error; err != nil {
		return nil, 0, fmt.Errorf("profiles: list: %w", err)
	}

	return profiles, total, nil
}

func (r *gormProfileRepository) ListEnabled(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("profiles: list enabled: %w", err)
	}
	return profiles, nil
}

// ListDueForSchedule returns every enabled, cron-or-interval-scheduled
// profile; now is not consulted. The scheduler itself resolves the
// cron expression; this query only narrows down to schedule-kind != Manual
// and != Webhook so the scheduler is not forced to scan the whole table.
func (r *gormProfileRepository) ListDueForSchedule(ctx context.Context, now time.Time) ([]Profile, error) {
	var profiles []Profile
	if err := r.db.WithContext(ctx).
		Where("enabled = ? AND schedule_kind IN ?", true, []string{string(ScheduleCron), string(ScheduleInterval)}).
		Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("profiles: list due for schedule: %w", err)
	}
	return profiles, nil
}

func (r *gormProfileRepository) UpdateLastExecutedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&Profile{}).Where("id = ?", id).Update("last_executed_at", at)
	if result.Error != nil {
		return fmt.Errorf("profiles: update last executed at: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
