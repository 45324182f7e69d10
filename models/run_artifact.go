package models

import (
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"gorm.io/gorm"
)

// RunArtifact is the downloadable result blob of a run
type RunArtifact struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RunID       uint      `gorm:"not null;uniqueIndex:uk_run_artifacts_run_id" json:"run_id"`
	FileName    string    `gorm:"type:varchar(255);not null" json:"file_name"`
	ContentType string    `gorm:"type:varchar(128);not null" json:"content_type"`
	Content     []byte    `gorm:"type:bytea;not null" json:"-"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (RunArtifact) TableName() string {
	return "run_artifacts"
}

func (a *RunArtifact) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}
