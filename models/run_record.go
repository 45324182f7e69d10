package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunTrigger records why an execution happened
type RunTrigger string

const (
	RunTriggerTest      RunTrigger = "test"
	RunTriggerManual    RunTrigger = "manual"
	RunTriggerScheduled RunTrigger = "scheduled"
)

func (t RunTrigger) String() string {
	return string(t)
}

func (t RunTrigger) Valid() bool {
	switch t {
	case RunTriggerTest, RunTriggerManual, RunTriggerScheduled:
		return true
	default:
		return false
	}
}

func (t *RunTrigger) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*t = RunTrigger(v)
	case []byte:
		*t = RunTrigger(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RunTrigger", value)
	}
	return nil
}

func (t RunTrigger) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid RunTrigger: %s", t)
	}
	return string(t), nil
}

// RunStatus is the state of a single execution attempt
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

func (s RunStatus) String() string {
	return string(s)
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailed:
		return true
	default:
		return false
	}
}

func (s *RunStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = RunStatus(v)
	case []byte:
		*s = RunStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RunStatus", value)
	}
	return nil
}

func (s RunStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid RunStatus: %s", s)
	}
	return string(s), nil
}

// RunRecord is one concrete execution attempt. Immutable once FinishedAt is
// set; Log only grows while Status is running.
type RunRecord struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_run_records_uuid" json:"uuid"`
	CampaignID     uint       `gorm:"not null;index:idx_run_records_campaign_id;uniqueIndex:uk_run_records_campaign_running,where:status = 'running'" json:"campaign_id"`
	ScheduledRunID *uint      `gorm:"index:idx_run_records_scheduled_run_id" json:"scheduled_run_id,omitempty"`
	Trigger        RunTrigger `gorm:"type:varchar(20);not null" json:"trigger"`
	Status         RunStatus  `gorm:"type:varchar(20);not null;default:'running';index:idx_run_records_status" json:"status"`
	StartedAt      time.Time  `gorm:"not null;index:idx_run_records_started_at" json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Log            string     `gorm:"type:text;not null;default:''" json:"-"`
	ResultRef      *string    `gorm:"type:varchar(255)" json:"result_ref,omitempty"`
	Destinations   int        `gorm:"not null;default:0" json:"destinations"`
	Sent           int        `gorm:"not null;default:0" json:"sent"`
	Failed         int        `gorm:"not null;default:0" json:"failed"`
	ErrorKind      *string    `gorm:"type:varchar(40)" json:"error_kind,omitempty"`
	ErrorMessage   *string    `gorm:"type:text" json:"error_message,omitempty"`

	// Relations
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
}

func (RunRecord) TableName() string {
	return "run_records"
}

func (r *RunRecord) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RunStatusRunning
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = utils.UTCNow()
	}
	return nil
}

// IsFinished reports whether the run has been closed
func (r *RunRecord) IsFinished() bool {
	return r.FinishedAt != nil
}

// RunRecordFilter represents dashboard filter criteria for runs
type RunRecordFilter struct {
	ID             *uint
	UUID           *uuid.UUID
	CampaignID     *uint
	ScheduledRunID *uint
	Status         *RunStatus
	Trigger        *RunTrigger
	CustomerID     *uint
	Query          *string
	StartedBefore  *time.Time
}

// RunRecordView is a run joined with campaign/customer names for dashboards
type RunRecordView struct {
	RunRecord
	CampaignUUID uuid.UUID `json:"campaign_uuid"`
	CampaignName string    `json:"campaign_name"`
	CustomerUUID uuid.UUID `json:"customer_uuid"`
	CustomerName string    `json:"customer_name"`
	HasLog       bool      `json:"has_log"`
	HasResult    bool      `json:"has_result"`
}
