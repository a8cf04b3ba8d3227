package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormImportProfileRepository struct {
	db *gorm.DB
}

// NewImportProfileRepository returns an ImportProfileRepository backed by db.
func NewImportProfileRepository(db *gorm.DB) ImportProfileRepository {
	return &gormImportProfileRepository{db: db}
}

func (r *gormImportProfileRepository) Create(ctx context.Context, p *ImportProfile) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("import_profiles: create: %w", err)
	}
	return nil
}

func (r *gormImportProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*ImportProfile, error) {
	var p ImportProfile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("import_profiles: get by id: %w", err)
	}
	return &p, nil
}

func (r *gormImportProfileRepository) GetByCode(ctx context.Context, code string) (*ImportProfile, error) {
	var p ImportProfile
	if err := r.db.WithContext(ctx).First(&p, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("import_profiles: get by code: %w", err)
	}
	return &p, nil
}

func (r *gormImportProfileRepository) Update(ctx context.Context, p *ImportProfile) error {
	result := r.db.WithContext(ctx).Save(p)
	if result.Error != nil {
		return fmt.Errorf("import_profiles: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormImportProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&ImportProfile{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("import_profiles: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormImportProfileRepository) List(ctx context.Context, opts ListOptions) ([]ImportProfile, int64, error) {
	var profiles []ImportProfile
	var total int64

	if err := r.db.WithContext(ctx).Model(&ImportProfile{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("import_profiles: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&profiles).Error; err != nil {
		return nil, 0, fmt.Errorf("import_profiles: list: %w", err)
	}

	return profiles, total, nil
}

func (r *gormImportProfileRepository) ListEnabled(ctx context.Context) ([]ImportProfile, error) {
	var profiles []ImportProfile
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("import_profiles: list enabled: %w", err)
	}
	return profiles, nil
}

func (r *gormImportProfileRepository) UpdateLastExecutedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&ImportProfile{}).Where("id = ?", id).Update("last_executed_at", at)
	if result.Error != nil {
		return fmt.Errorf("import_profiles: update last executed at: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
