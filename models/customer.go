// Package models contains domain entities persisted by the campaign run service
package models

import (
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is the account a campaign is sent on behalf of.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_customers_uuid" json:"uuid"`
	Code      string    `gorm:"size:64;not null;uniqueIndex:uk_customers_code" json:"code"`
	Name      string    `gorm:"size:255;not null;index:idx_customers_name" json:"name"`
	ServiceID string    `gorm:"size:128;not null" json:"service_id"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_customers_created_at" json:"created_at"`

	// Relations
	Media     []CustomerMedia `gorm:"foreignKey:CustomerID" json:"-"`
	Campaigns []Campaign      `gorm:"foreignKey:CustomerID" json:"-"`
}

func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate is called before creating a new record
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// CustomerFilter represents filter criteria for customer queries
type CustomerFilter struct {
	ID   *uint
	UUID *uuid.UUID
	Code *string
	Name *string
}
