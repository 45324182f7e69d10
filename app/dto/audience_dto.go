package dto

// UploadAudienceRequest carries an uploaded csv or xlsx file
type UploadAudienceRequest struct {
	FileName string `json:"-"`
	Data     []byte `json:"-"`
}

// AudienceSnapshotResponse represents an immutable audience snapshot
type AudienceSnapshotResponse struct {
	UUID             string   `json:"uuid"`
	OriginalFilename string   `json:"original_filename"`
	RowCount         int      `json:"row_count"`
	Columns          []string `json:"columns"`
	ContentSHA256    string   `json:"content_sha256"`
	CreatedAt        string   `json:"created_at"`
}

// AudiencePreviewRow is one parsed row shown after upload
type AudiencePreviewRow struct {
	PhoneNumber string            `json:"phone_number"`
	Link        string            `json:"link"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// UploadAudienceResponse represents the result of an audience upload
type UploadAudienceResponse struct {
	Message  string                   `json:"message"`
	Snapshot AudienceSnapshotResponse `json:"snapshot"`
	Columns  []string                 `json:"columns"`
	Preview  []AudiencePreviewRow     `json:"preview"`
	Dropped  int                      `json:"dropped_rows"`
}
