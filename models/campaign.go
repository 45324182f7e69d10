package models

import (
	"strings"
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Campaign is an immutable draft: audience, template and target customer.
// Only SelectedMediaID may change, and only before the first run.
type Campaign struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UUID               uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	CustomerID         uint      `gorm:"not null;index:idx_campaigns_customer_id" json:"customer_id"`
	Name               string    `gorm:"size:255;not null;index:idx_campaigns_name" json:"name"`
	AudienceSnapshotID *uint     `gorm:"index:idx_campaigns_audience_snapshot_id" json:"audience_snapshot_id,omitempty"`
	SelectedMediaID    *uint     `json:"selected_media_id,omitempty"`
	MessageTemplate    string    `gorm:"type:text;not null" json:"message_template"`
	TestNumber         string    `gorm:"size:32" json:"test_number"`
	CreatedAt          time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`

	// Relations
	Customer         *Customer         `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	AudienceSnapshot *AudienceSnapshot `gorm:"foreignKey:AudienceSnapshotID;references:ID" json:"audience_snapshot,omitempty"`
	SelectedMedia    *CustomerMedia    `gorm:"foreignKey:SelectedMediaID;references:ID" json:"selected_media,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// HasPlaceholder reports whether the template carries the link placeholder
func (c *Campaign) HasPlaceholder() bool {
	return strings.Contains(c.MessageTemplate, utils.LinkPlaceholder)
}

// HasAudience reports whether an audience snapshot is attached
func (c *Campaign) HasAudience() bool {
	return c.AudienceSnapshotID != nil && *c.AudienceSnapshotID != 0
}

// Render substitutes the link placeholder with link
func (c *Campaign) Render(link string) string {
	return strings.ReplaceAll(c.MessageTemplate, utils.LinkPlaceholder, link)
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	CustomerID    *uint
	Name          *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
