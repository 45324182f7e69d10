package repository

import (
	"context"

	"github.com/amirphl/Amaterasu/models"
	"gorm.io/gorm"
)

// CustomerMediaRepositoryImpl implements CustomerMediaRepository
type CustomerMediaRepositoryImpl struct {
	*BaseRepository[models.CustomerMedia, models.CustomerMediaFilter]
}

func NewCustomerMediaRepository(db *gorm.DB) CustomerMediaRepository {
	return &CustomerMediaRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CustomerMedia, models.CustomerMediaFilter](db, applyCustomerMediaFilter),
	}
}

func (r *CustomerMediaRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.CustomerMedia, error) {
	return r.byColumn(ctx, "uuid", uuid)
}

func applyCustomerMediaFilter(db *gorm.DB, filter models.CustomerMediaFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.FileType != nil {
		db = db.Where("file_type = ?", *filter.FileType)
	}
	return db
}
