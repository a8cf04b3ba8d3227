package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormWebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository returns a WebhookRepository backed by db.
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &gormWebhookRepository{db: db}
}

func (r *gormWebhookRepository) Create(ctx context.Context, w *WebhookTrigger) error {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("webhook_triggers: create: %w", err)
	}
	return nil
}

func (r *gormWebhookRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*WebhookTrigger, error) {
	var w WebhookTrigger
	if err := r.db.WithContext(ctx).First(&w, "token_hash = ?", tokenHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("webhook_triggers: get by token hash: %w", err)
	}
	return &w, nil
}

func (r *gormWebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*WebhookTrigger, error) {
	var w WebhookTrigger
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("webhook_triggers: get by id: %w", err)
	}
	return &w, nil
}

func (r *gormWebhookRepository) Update(ctx context.Context, w *WebhookTrigger) error {
	result := r.db.WithContext(ctx).Save(w)
	if result.Error != nil {
		return fmt.Errorf("webhook_triggers: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormWebhookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&WebhookTrigger{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("webhook_triggers: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormWebhookRepository) List(ctx context.Context, opts ListOptions) ([]WebhookTrigger, int64, error) {
	var webhooks []WebhookTrigger
	var total int64

	if err := r.db.WithContext(ctx).Model(&WebhookTrigger{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("webhook_triggers: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&webhooks).Error; err != nil {
		return nil, 0, fmt.Errorf("webhook_triggers: list: %w", err)
	}

	return webhooks, total, nil
}

func (r *gormWebhookRepository) RecordTrigger(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&WebhookTrigger{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_triggered_at": at,
			"trigger_count":     gorm.Expr("trigger_count + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("webhook_triggers: record trigger: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
