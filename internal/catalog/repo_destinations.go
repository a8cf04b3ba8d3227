package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormDestinationRepository struct {
	db *gorm.DB
}

// NewDestinationRepository returns a DestinationRepository backed by db.
func NewDestinationRepository(db *gorm.DB) DestinationRepository {
	return &gormDestinationRepository{db: db}
}

func (r *gormDestinationRepository) Create(ctx context.Context, d *Destination) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("destinations: create: %w", err)
	}
	return nil
}

func (r *gormDestinationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Destination, error) {
	var d Destination
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("destinations: get by id: %w", err)
	}
	return &d, nil
}

// Update persists all fields of a destination. Secret leaves in
// Configuration are expected to already be individually encrypted by the
// caller via internal/encryption before this is called.
func (r *gormDestinationRepository) Update(ctx context.Context, d *Destination) error {
	result := r.db.WithContext(ctx).Save(d)
	if result.Error != nil {
		return fmt.Errorf("destinations: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormDestinationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Destination{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("destinations: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormDestinationRepository) List(ctx context.Context, opts ListOptions) ([]Destination, int64, error) {
	var destinations []Destination
	var total int64

	if err := r.db.WithContext(ctx).Model(&Destination{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("destinations: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&destinations).Error; err != nil {
		return nil, 0, fmt.Errorf("destinations: list: %w", err)
	}

	return destinations, total, nil
}
