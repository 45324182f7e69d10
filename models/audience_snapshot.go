package models

import (
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// AudienceSnapshot is an immutable, already-validated recipient list.
type AudienceSnapshot struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UUID             uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_audience_snapshots_uuid" json:"uuid"`
	OriginalFilename string         `gorm:"type:varchar(255);not null" json:"original_filename"`
	RowCount         int            `gorm:"not null" json:"row_count"`
	Columns          pq.StringArray `gorm:"type:text[];not null" json:"columns"`
	ContentSHA256    string         `gorm:"type:char(64);not null;index:idx_audience_snapshots_sha256" json:"content_sha256"`
	CreatedAt        time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (AudienceSnapshot) TableName() string {
	return "audience_snapshots"
}

func (s *AudienceSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// AudienceRow is one recipient of a snapshot
type AudienceRow struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	SnapshotID  uint   `gorm:"not null;uniqueIndex:uk_audience_rows_snapshot_position,priority:1" json:"-"`
	Position    int    `gorm:"not null;uniqueIndex:uk_audience_rows_snapshot_position,priority:2" json:"position"`
	PhoneNumber string `gorm:"type:varchar(32);not null" json:"phone_number"`
	Link        string `gorm:"type:text;not null" json:"link"`
}

func (AudienceRow) TableName() string {
	return "audience_rows"
}
