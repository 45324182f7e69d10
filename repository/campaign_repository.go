package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db, applyCampaignFilter),
	}
}

func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	return r.byColumn(ctx, "uuid", uuid)
}

// UpdateSelectedMedia swaps the media reference in a single guarded statement so
// a run starting concurrently cannot observe a half-applied change.
func (r *CampaignRepositoryImpl) UpdateSelectedMedia(ctx context.Context, campaignID uint, mediaID *uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Where("NOT EXISTS (SELECT 1 FROM run_records rr WHERE rr.campaign_id = campaigns.id)").
		Update("selected_media_id", mediaID)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update campaign media: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func applyCampaignFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Name != nil {
		db = db.Where(`name ILIKE ? ESCAPE '\'`, utils.ContainsPattern(*filter.Name))
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
