package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Amaterasu/models"
	"gorm.io/gorm"
)

// AudienceRepositoryImpl implements AudienceRepository
type AudienceRepositoryImpl struct {
	*BaseRepository[models.AudienceSnapshot, any]
}

func NewAudienceRepository(db *gorm.DB) AudienceRepository {
	return &AudienceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AudienceSnapshot, any](db, nil),
	}
}

func (r *AudienceRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.AudienceSnapshot, error) {
	return r.byColumn(ctx, "uuid", uuid)
}

// SaveWithRows persists a snapshot and all its rows atomically
func (r *AudienceRepositoryImpl) SaveWithRows(ctx context.Context, snapshot *models.AudienceSnapshot, rows []*models.AudienceRow) error {
	return WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		db := r.getDB(txCtx)
		snapshot.RowCount = len(rows)
		if err := db.Create(snapshot).Error; err != nil {
			return fmt.Errorf("failed to save audience snapshot: %w", err)
		}
		for i, row := range rows {
			row.SnapshotID = snapshot.ID
			row.Position = i
		}
		if len(rows) == 0 {
			return nil
		}
		if err := db.CreateInBatches(rows, 1000).Error; err != nil {
			return fmt.Errorf("failed to save audience rows: %w", err)
		}
		return nil
	})
}

// Rows returns snapshot rows in upload order; limit <= 0 returns all rows
func (r *AudienceRepositoryImpl) Rows(ctx context.Context, snapshotID uint, limit int) ([]*models.AudienceRow, error) {
	query := r.getDB(ctx).Where("snapshot_id = ?", snapshotID).Order("position ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []*models.AudienceRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list audience rows: %w", err)
	}
	return rows, nil
}
