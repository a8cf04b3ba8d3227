package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository returns a ConnectionRepository backed by db.
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

func (r *gormConnectionRepository) Create(ctx context.Context, c *Connection) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("connections: create: %w", err)
	}
	return nil
}

func (r *gormConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Connection, error) {
	var c Connection
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("connections: get by id: %w", err)
	}
	return &c, nil
}

func (r *gormConnectionRepository) Update(ctx context.Context, c *Connection) error {
	result := r.db.WithContext(ctx).Save(c)
	if result.Error != nil {
		return fmt.Errorf("connections: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes a connection. The caller must verify no enabled
// profile still references it before calling; this method does not check.
func (r *gormConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Connection{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("connections: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormConnectionRepository) List(ctx context.Context, opts ListOptions) ([]Connection, int64, error) {
	var connections []Connection
	var total int64

	if err := r.db.WithContext(ctx).Model(&Connection{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("connections: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&connections).Error; err != nil {
		return nil, 0, fmt.Errorf("connections: list: %w", err)
	}

	return connections, total, nil
}
