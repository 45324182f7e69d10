package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduledRunStatus represents the lifecycle state of a scheduled run
type ScheduledRunStatus string

const (
	ScheduledRunStatusScheduled    ScheduledRunStatus = "scheduled"
	ScheduledRunStatusWaitingToken ScheduledRunStatus = "waiting_token"
	ScheduledRunStatusRunning      ScheduledRunStatus = "running"
	ScheduledRunStatusSuccess      ScheduledRunStatus = "success"
	ScheduledRunStatusFailed       ScheduledRunStatus = "failed"
	ScheduledRunStatusCanceled     ScheduledRunStatus = "canceled"
)

// PendingScheduledRunStatuses are the states a run may leave through supplyToken or cancel
var PendingScheduledRunStatuses = []ScheduledRunStatus{
	ScheduledRunStatusScheduled,
	ScheduledRunStatusWaitingToken,
}

// String returns the string representation of the status
func (s ScheduledRunStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ScheduledRunStatus) Valid() bool {
	switch s {
	case ScheduledRunStatusScheduled, ScheduledRunStatusWaitingToken,
		ScheduledRunStatusRunning, ScheduledRunStatusSuccess,
		ScheduledRunStatusFailed, ScheduledRunStatusCanceled:
		return true
	default:
		return false
	}
}

// IsPending reports whether the run has not started executing yet
func (s ScheduledRunStatus) IsPending() bool {
	return s == ScheduledRunStatusScheduled || s == ScheduledRunStatusWaitingToken
}

// IsTerminal reports whether no further transition is possible
func (s ScheduledRunStatus) IsTerminal() bool {
	return s == ScheduledRunStatusSuccess || s == ScheduledRunStatusFailed || s == ScheduledRunStatusCanceled
}

// Scan implements the sql.Scanner interface for ScheduledRunStatus
func (s *ScheduledRunStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ScheduledRunStatus(v)
	case []byte:
		*s = ScheduledRunStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ScheduledRunStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ScheduledRunStatus
func (s ScheduledRunStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ScheduledRunStatus: %s", s)
	}
	return string(s), nil
}

// ScheduledRun is the durable intent to execute a campaign at RunAt.
// RunAt is always an absolute UTC instant.
type ScheduledRun struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:uk_scheduled_runs_uuid" json:"uuid"`
	CampaignID   uint               `gorm:"not null;index:idx_scheduled_runs_campaign_id" json:"campaign_id"`
	RunAt        time.Time          `gorm:"not null;index:idx_scheduled_runs_status_run_at,priority:2" json:"run_at"`
	Status       ScheduledRunStatus `gorm:"type:varchar(20);not null;default:'scheduled';index:idx_scheduled_runs_status_run_at,priority:1" json:"status"`
	LastRunID    *uint              `json:"last_run_id,omitempty"`
	CancelReason *string            `gorm:"type:text" json:"cancel_reason,omitempty"`
	CreatedAt    time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Campaign *Campaign  `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
	LastRun  *RunRecord `gorm:"foreignKey:LastRunID;references:ID" json:"last_run,omitempty"`
}

func (ScheduledRun) TableName() string {
	return "scheduled_runs"
}

// BeforeCreate normalizes RunAt to UTC and fills defaults
func (r *ScheduledRun) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = ScheduledRunStatusScheduled
	}
	r.RunAt = r.RunAt.UTC()
	now := utils.UTCNow()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// ScheduledRunFilter represents filter criteria for scheduled runs
type ScheduledRunFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	CampaignID *uint
	Status     *ScheduledRunStatus
	DueBefore  *time.Time
}

// ScheduledRunView is a scheduled run joined with its campaign and customer names
type ScheduledRunView struct {
	ScheduledRun
	CampaignUUID uuid.UUID  `json:"campaign_uuid"`
	CampaignName string     `json:"campaign_name"`
	CustomerName string     `json:"customer_name"`
	LastRunUUID  *uuid.UUID `json:"last_run_uuid,omitempty"`
}
