package repository

import (
	"context"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"gorm.io/gorm"
)

// CustomerRepositoryImpl implements CustomerRepository
type CustomerRepositoryImpl struct {
	*BaseRepository[models.Customer, models.CustomerFilter]
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &CustomerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Customer, models.CustomerFilter](db, applyCustomerFilter),
	}
}

func (r *CustomerRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Customer, error) {
	return r.byColumn(ctx, "uuid", uuid)
}

func (r *CustomerRepositoryImpl) ByCode(ctx context.Context, code string) (*models.Customer, error) {
	return r.byColumn(ctx, "code", code)
}

func applyCustomerFilter(db *gorm.DB, filter models.CustomerFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Code != nil {
		db = db.Where("code = ?", *filter.Code)
	}
	if filter.Name != nil {
		db = db.Where(`name ILIKE ? ESCAPE '\'`, utils.ContainsPattern(*filter.Name))
	}
	return db
}
