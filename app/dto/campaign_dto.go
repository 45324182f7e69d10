package dto

// CreateCampaignRequest represents the request to create a new campaign draft
type CreateCampaignRequest struct {
	CustomerUUID         string  `json:"customer_uuid" validate:"required,uuid4"`
	Name                 string  `json:"name" validate:"required,max=255"`
	AudienceSnapshotUUID string  `json:"audience_snapshot_uuid" validate:"required,uuid4"`
	MediaUUID            *string `json:"media_uuid,omitempty" validate:"omitempty,uuid4"`
	MessageTemplate      string  `json:"message_template" validate:"required,max=4096"`
	TestNumber           string  `json:"test_number" validate:"omitempty,numeric,min=10,max=15"`
}

// CampaignResponse represents the campaign in responses
type CampaignResponse struct {
	UUID                 string  `json:"uuid"`
	CustomerUUID         string  `json:"customer_uuid"`
	CustomerName         string  `json:"customer_name"`
	Name                 string  `json:"name"`
	AudienceSnapshotUUID string  `json:"audience_snapshot_uuid,omitempty"`
	AudienceRowCount     int     `json:"audience_row_count"`
	MediaUUID            *string `json:"media_uuid,omitempty"`
	MessageTemplate      string  `json:"message_template"`
	TestNumber           string  `json:"test_number"`
	CreatedAt            string  `json:"created_at"`
}

// ListCampaignsRequest represents campaign list filters
type ListCampaignsRequest struct {
	CustomerUUID string `query:"customer_uuid" validate:"omitempty,uuid4"`
	Name         string `query:"name" validate:"omitempty,max=255"`
	Limit        int    `query:"limit" validate:"omitempty,min=1,max=1000"`
}

// ListCampaignsResponse represents the campaign list
type ListCampaignsResponse struct {
	Items []CampaignResponse `json:"items"`
}

// SelectCampaignMediaRequest changes the selected media before the first run.
// A nil MediaUUID clears the selection.
type SelectCampaignMediaRequest struct {
	CampaignUUID string  `json:"-"`
	MediaUUID    *string `json:"media_uuid" validate:"omitempty,uuid4"`
}
