package dto

import "time"

// ScheduleRunRequest schedules a campaign. Either RunAt (an absolute instant)
// or LocalRunAt with an optional Timezone must be provided.
type ScheduleRunRequest struct {
	CampaignUUID string     `json:"campaign_uuid" validate:"required,uuid4"`
	RunAt        *time.Time `json:"run_at,omitempty"`
	LocalRunAt   string     `json:"local_run_at,omitempty" validate:"omitempty,max=32"`
	Timezone     string     `json:"timezone,omitempty" validate:"omitempty,max=64"`
}

// ScheduledRunResponse represents a scheduled run
type ScheduledRunResponse struct {
	UUID         string    `json:"uuid"`
	CampaignUUID string    `json:"campaign_uuid"`
	CampaignName string    `json:"campaign_name,omitempty"`
	CustomerName string    `json:"customer_name,omitempty"`
	RunAt        time.Time `json:"run_at"`
	RunAtDisplay string    `json:"run_at_display"`
	Status       string    `json:"status"`
	LastRunUUID  *string   `json:"last_run_uuid,omitempty"`
	CancelReason *string   `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListScheduledRunsRequest represents scheduled run list options
type ListScheduledRunsRequest struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=1000"`
}

// ListScheduledRunsResponse represents the scheduled run list
type ListScheduledRunsResponse struct {
	Items []ScheduledRunResponse `json:"items"`
}

// SupplyTokenRequest releases a scheduled run for execution
type SupplyTokenRequest struct {
	ScheduledRunUUID string `json:"-"`
	Token            string `json:"token" validate:"required,max=4096"`
}

// CancelScheduledRunRequest cancels a pending scheduled run
type CancelScheduledRunRequest struct {
	ScheduledRunUUID string `json:"-"`
}

// RunNowRequest executes a campaign immediately
type RunNowRequest struct {
	CampaignUUID string `json:"-"`
	Token        string `json:"token" validate:"required,max=4096"`
}

// SendTestRequest sends one test message of a campaign
type SendTestRequest struct {
	CampaignUUID string `json:"-"`
	Token        string `json:"token" validate:"required,max=4096"`
	TestNumber   string `json:"test_number,omitempty" validate:"omitempty,numeric,min=10,max=15"`
}

// RunResponse represents one execution attempt
type RunResponse struct {
	UUID             string     `json:"uuid"`
	CampaignUUID     string     `json:"campaign_uuid"`
	CampaignName     string     `json:"campaign_name,omitempty"`
	CustomerUUID     string     `json:"customer_uuid,omitempty"`
	CustomerName     string     `json:"customer_name,omitempty"`
	ScheduledRunUUID *string    `json:"scheduled_run_uuid,omitempty"`
	Trigger          string     `json:"trigger"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Destinations     int        `json:"destinations"`
	Sent             int        `json:"sent"`
	Failed           int        `json:"failed"`
	ErrorKind        *string    `json:"error_kind,omitempty"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	ResultRef        *string    `json:"result_ref,omitempty"`
	HasLog           bool       `json:"has_log"`
	HasResult        bool       `json:"has_result"`
	LogURL           string     `json:"log_url"`
	ResultURL        *string    `json:"result_url,omitempty"`
}

// ListRunsRequest represents the runs dashboard filters
type ListRunsRequest struct {
	Status       string `query:"status" validate:"omitempty,oneof=running success failed"`
	CustomerUUID string `query:"customer_uuid" validate:"omitempty,uuid4"`
	Query        string `query:"q" validate:"omitempty,max=255"`
	Limit        int    `query:"limit" validate:"omitempty,min=1,max=1000"`
}

// ListRunsResponse represents the runs dashboard
type ListRunsResponse struct {
	Items []RunResponse `json:"items"`
}

// AppendRunLogRequest appends a chunk to a running run's log
type AppendRunLogRequest struct {
	RunUUID string `json:"-"`
	Chunk   string `json:"chunk" validate:"required,max=65536"`
}

// RunLogResponse represents a run's full log
type RunLogResponse struct {
	UUID   string `json:"uuid"`
	Status string `json:"status"`
	Log    string `json:"log"`
}

// RunResultResponse is a downloadable result artifact
type RunResultResponse struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}
