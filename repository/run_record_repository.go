package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"gorm.io/gorm"
)

// RunRecordRepositoryImpl implements RunRecordRepository
type RunRecordRepositoryImpl struct {
	*BaseRepository[models.RunRecord, models.RunRecordFilter]
}

func NewRunRecordRepository(db *gorm.DB) RunRecordRepository {
	return &RunRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RunRecord, models.RunRecordFilter](db, runRecordFilter("")),
	}
}

func (r *RunRecordRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.RunRecord, error) {
	return r.byColumn(ctx, "uuid", uuid)
}

// Save opens a run. The partial unique index on running rows turns a second
// concurrent run of the same campaign into ErrRunningRunExists.
func (r *RunRecordRepositoryImpl) Save(ctx context.Context, run *models.RunRecord) error {
	if err := r.BaseRepository.Save(ctx, run); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRunningRunExists
		}
		return err
	}
	return nil
}

func (r *RunRecordRepositoryImpl) AppendLog(ctx context.Context, id uint, chunk string) (bool, error) {
	res := r.getDB(ctx).Model(&models.RunRecord{}).
		Where("id = ? AND status = ?", id, models.RunStatusRunning).
		Update("log", gorm.Expr("log || ?", chunk))
	if res.Error != nil {
		return false, fmt.Errorf("failed to append log for run %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *RunRecordRepositoryImpl) Finish(ctx context.Context, run *models.RunRecord) (bool, error) {
	if run.FinishedAt == nil {
		run.FinishedAt = utils.UTCNowPtr()
	}
	res := r.getDB(ctx).Model(&models.RunRecord{}).
		Where("id = ? AND status = ?", run.ID, models.RunStatusRunning).
		Updates(map[string]any{
			"status":        run.Status,
			"finished_at":   run.FinishedAt,
			"result_ref":    run.ResultRef,
			"destinations":  run.Destinations,
			"sent":          run.Sent,
			"failed":        run.Failed,
			"error_kind":    run.ErrorKind,
			"error_message": run.ErrorMessage,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to finish run %d: %w", run.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListViews serves the runs dashboard, newest first
func (r *RunRecordRepositoryImpl) ListViews(ctx context.Context, filter models.RunRecordFilter, limit int) ([]*models.RunRecordView, error) {
	limit = utils.ClampLimit(limit, utils.DefaultRunListLimit, utils.MaxRunListLimit)

	query := r.getDB(ctx).
		Table("run_records rr").
		Select(`rr.id, rr.uuid, rr.campaign_id, rr.scheduled_run_id, rr.trigger, rr.status,
			rr.started_at, rr.finished_at, rr.result_ref, rr.destinations, rr.sent, rr.failed,
			rr.error_kind, rr.error_message,
			c.uuid AS campaign_uuid, c.name AS campaign_name,
			cu.uuid AS customer_uuid, cu.name AS customer_name,
			length(rr.log) > 0 AS has_log,
			EXISTS (SELECT 1 FROM run_artifacts ra WHERE ra.run_id = rr.id) AS has_result`).
		Joins("JOIN campaigns c ON c.id = rr.campaign_id").
		Joins("JOIN customers cu ON cu.id = c.customer_id")

	query = runRecordFilter("rr.")(query, filter)

	var rows []*models.RunRecordView
	if err := query.Order("rr.started_at DESC, rr.id DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return rows, nil
}

// runRecordFilter builds a filter applier whose columns are qualified by prefix
func runRecordFilter(prefix string) filterFunc[models.RunRecordFilter] {
	return func(db *gorm.DB, filter models.RunRecordFilter) *gorm.DB {
		if filter.ID != nil {
			db = db.Where(prefix+"id = ?", *filter.ID)
		}
		if filter.UUID != nil {
			db = db.Where(prefix+"uuid = ?", *filter.UUID)
		}
		if filter.CampaignID != nil {
			db = db.Where(prefix+"campaign_id = ?", *filter.CampaignID)
		}
		if filter.ScheduledRunID != nil {
			db = db.Where(prefix+"scheduled_run_id = ?", *filter.ScheduledRunID)
		}
		if filter.Status != nil {
			db = db.Where(prefix+"status = ?", *filter.Status)
		}
		if filter.Trigger != nil {
			db = db.Where(prefix+"trigger = ?", *filter.Trigger)
		}
		if filter.StartedBefore != nil {
			db = db.Where(prefix+"started_at < ?", filter.StartedBefore.UTC())
		}
		if filter.CustomerID != nil {
			db = db.Where(prefix+"campaign_id IN (SELECT id FROM campaigns WHERE customer_id = ?)", *filter.CustomerID)
		}
		if filter.Query != nil && *filter.Query != "" {
			like := utils.ContainsPattern(*filter.Query)
			db = db.Where(prefix+`campaign_id IN (
				SELECT c2.id FROM campaigns c2 JOIN customers cu2 ON cu2.id = c2.customer_id
				WHERE c2.name ILIKE ? ESCAPE '\' OR cu2.name ILIKE ? ESCAPE '\')`, like, like)
		}
		return db
	}
}
