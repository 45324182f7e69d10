package models

import (
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaFileType is the provider-side category of an uploaded file
type MediaFileType string

const (
	MediaFileTypeImage MediaFileType = "Image"
	MediaFileTypeVideo MediaFileType = "Video"
)

// Valid checks if the file type is one the provider accepts
func (t MediaFileType) Valid() bool {
	return t == MediaFileTypeImage || t == MediaFileTypeVideo
}

// CustomerMedia is a provider file reference owned by a customer.
// Only the provider's file_id is kept; the uploaded bytes are not stored.
type CustomerMedia struct {
	ID         uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID       uuid.UUID     `gorm:"type:uuid;uniqueIndex:uk_customer_media_uuid;not null" json:"uuid"`
	CustomerID uint          `gorm:"not null;index:idx_customer_media_customer_id" json:"customer_id"`
	FileID     string        `gorm:"type:varchar(255);not null" json:"file_id"`
	FileName   string        `gorm:"type:varchar(255);not null" json:"file_name"`
	FileType   MediaFileType `gorm:"type:varchar(20);not null" json:"file_type"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`

	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID;constraint:OnDelete:CASCADE" json:"customer,omitempty"`
}

func (CustomerMedia) TableName() string { return "customer_media" }

// BeforeCreate ensures UUID and timestamps are set.
func (m *CustomerMedia) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	return nil
}

// CustomerMediaFilter represents filter criteria for media queries.
type CustomerMediaFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	CustomerID *uint
	FileType   *MediaFileType
}
