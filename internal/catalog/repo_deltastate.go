package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormDeltaStateRepository struct {
	db *gorm.DB
}

// NewDeltaStateRepository returns a DeltaStateRepository backed by db. It
// also implements internal/delta.StateStore.
func NewDeltaStateRepository(db *gorm.DB) DeltaStateRepository {
	return &gormDeltaStateRepository{db: db}
}

func (r *gormDeltaStateRepository) LoadActive(ctx context.Context, profileID uuid.UUID) (map[string]string, error) {
	var rows []DeltaState
	if err := r.db.WithContext(ctx).
		Where("profile_id = ? AND is_deleted = ?", profileID, false).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("delta_states: load active: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ReefID] = row.RowHash
	}
	return out, nil
}

// Commit upserts every (profileID, reefID) in hashes and, if trackDeletes,
// flips is_deleted for deletedIDs. Batched at batchSize rows per transaction
// to bound lock hold time.
func (r *gormDeltaStateRepository) Commit(ctx context.Context, profileID, executionID uuid.UUID, hashes map[string]string, deletedIDs []string, trackDeletes bool, now time.Time) error {
	const batchSize = 1000

	keys := make([]string, 0, len(hashes))
	for id := range hashes {
		keys = append(keys, id)
	}

	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := make([]DeltaState, 0, end-start)
		for _, id := range keys[start:end] {
			batch = append(batch, DeltaState{
				ProfileID:           profileID,
				ReefID:              id,
				RowHash:             hashes[id],
				FirstSeenAt:         now,
				LastSeenAt:          now,
				LastSeenExecutionID: executionID,
				IsDeleted:           false,
				DeletedAt:           nil,
			})
		}
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "profile_id"}, {Name: "reef_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"row_hash", "last_seen_at", "last_seen_execution_id", "is_deleted", "deleted_at",
			}),
		}).Create(&batch).Error
		if err != nil {
			return fmt.Errorf("delta_states: commit batch: %w", err)
		}
	}

	if trackDeletes {
		for start := 0; start < len(deletedIDs); start += batchSize {
			end := start + batchSize
			if end > len(deletedIDs) {
				end = len(deletedIDs)
			}
			batch := deletedIDs[start:end]
			err := r.db.WithContext(ctx).Model(&DeltaState{}).
				Where("profile_id = ? AND reef_id IN ?", profileID, batch).
				Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now}).Error
			if err != nil {
				return fmt.Errorf("delta_states: mark deleted batch: %w", err)
			}
		}
	}

	return nil
}

func (r *gormDeltaStateRepository) ResetAll(ctx context.Context, profileID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("profile_id = ?", profileID).Delete(&DeltaState{}).Error; err != nil {
		return fmt.Errorf("delta_states: reset all: %w", err)
	}
	return nil
}

func (r *gormDeltaStateRepository) ResetRows(ctx context.Context, profileID uuid.UUID, reefIDs []string) error {
	if err := r.db.WithContext(ctx).
		Where("profile_id = ? AND reef_id IN ?", profileID, reefIDs).
		Delete(&DeltaState{}).Error; err != nil {
		return fmt.Errorf("delta_states: reset rows: %w", err)
	}
	return nil
}

func (r *gormDeltaStateRepository) GenerateBaseline(ctx context.Context, profileID uuid.UUID, hashes map[string]string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("profile_id = ?", profileID).Delete(&DeltaState{}).Error; err != nil {
			return fmt.Errorf("delta_states: generate baseline reset: %w", err)
		}
		rows := make([]DeltaState, 0, len(hashes))
		for id, h := range hashes {
			rows = append(rows, DeltaState{
				ProfileID:           profileID,
				ReefID:              id,
				RowHash:             h,
				FirstSeenAt:         now,
				LastSeenAt:          now,
				LastSeenExecutionID: uuid.Nil,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 1000).Error; err != nil {
			return fmt.Errorf("delta_states: generate baseline insert: %w", err)
		}
		return nil
	})
}

func (r *gormDeltaStateRepository) PurgeRetention(ctx context.Context, profileID uuid.UUID, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("profile_id = ? AND is_deleted = ? AND last_seen_at < ?", profileID, true, cutoff).
		Delete(&DeltaState{})
	if result.Error != nil {
		return 0, fmt.Errorf("delta_states: purge retention: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormDeltaStateRepository) SchemaColumns(ctx context.Context, profileID uuid.UUID) ([]string, bool, error) {
	var schema DeltaSchema
	err := r.db.WithContext(ctx).First(&schema, "profile_id = ?", profileID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("delta_schemas: get: %w", err)
	}
	if schema.ColumnsCSV == "" {
		return []string{}, true, nil
	}
	return strings.Split(schema.ColumnsCSV, ","), true, nil
}

func (r *gormDeltaStateRepository) SetSchemaColumns(ctx context.Context, profileID uuid.UUID, columns []string, now time.Time) error {
	schema := DeltaSchema{ProfileID: profileID, ColumnsCSV: strings.Join(columns, ","), UpdatedAt: now}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"columns_csv", "updated_at"}),
	}).Create(&schema).Error
}
