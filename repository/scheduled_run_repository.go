package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"gorm.io/gorm"
)

// ScheduledRunRepositoryImpl implements ScheduledRunRepository
type ScheduledRunRepositoryImpl struct {
	*BaseRepository[models.ScheduledRun, models.ScheduledRunFilter]
}

func NewScheduledRunRepository(db *gorm.DB) ScheduledRunRepository {
	return &ScheduledRunRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ScheduledRun, models.ScheduledRunFilter](db, applyScheduledRunFilter),
	}
}

func (r *ScheduledRunRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.ScheduledRun, error) {
	return r.byColumn(ctx, "uuid", uuid)
}

// ListDue returns scheduled runs whose run_at is at or before now, oldest first
func (r *ScheduledRunRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledRun, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*models.ScheduledRun
	if err := r.getDB(ctx).
		Where("status = ? AND run_at <= ?", models.ScheduledRunStatusScheduled, now.UTC()).
		Order("run_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list due scheduled runs: %w", err)
	}
	return rows, nil
}

// ListWaitingSince returns waiting_token runs whose run_at is before the given instant
func (r *ScheduledRunRepositoryImpl) ListWaitingSince(ctx context.Context, runAtBefore time.Time, limit int) ([]*models.ScheduledRun, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*models.ScheduledRun
	if err := r.getDB(ctx).
		Where("status = ? AND run_at < ?", models.ScheduledRunStatusWaitingToken, runAtBefore.UTC()).
		Order("run_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list waiting scheduled runs: %w", err)
	}
	return rows, nil
}

func (r *ScheduledRunRepositoryImpl) CompareAndSwapStatus(
	ctx context.Context,
	id uint,
	from []models.ScheduledRunStatus,
	to models.ScheduledRunStatus,
	extra map[string]any,
) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.getDB(ctx).Model(&models.ScheduledRun{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition scheduled run %d to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListViews returns scheduled runs with campaign and customer names, newest run_at first
func (r *ScheduledRunRepositoryImpl) ListViews(ctx context.Context, limit int) ([]*models.ScheduledRunView, error) {
	limit = utils.ClampLimit(limit, utils.DefaultScheduledRunListLimit, utils.MaxRunListLimit)

	var rows []*models.ScheduledRunView
	err := r.getDB(ctx).
		Table("scheduled_runs sr").
		Select(`sr.*, c.uuid AS campaign_uuid, c.name AS campaign_name,
			cu.name AS customer_name, rr.uuid AS last_run_uuid`).
		Joins("JOIN campaigns c ON c.id = sr.campaign_id").
		Joins("JOIN customers cu ON cu.id = c.customer_id").
		Joins("LEFT JOIN run_records rr ON rr.id = sr.last_run_id").
		Order("sr.run_at DESC, sr.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled runs: %w", err)
	}
	return rows, nil
}

func applyScheduledRunFilter(db *gorm.DB, filter models.ScheduledRunFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.DueBefore != nil {
		db = db.Where("run_at <= ?", filter.DueBefore.UTC())
	}
	return db
}
