package dto

// CreateCustomerRequest represents the request to register a target customer
type CreateCustomerRequest struct {
	Code      string `json:"code" validate:"required,min=2,max=64,printascii"`
	Name      string `json:"name" validate:"required,max=255"`
	ServiceID string `json:"service_id" validate:"required,max=255"`
}

// CustomerResponse represents a customer in responses
type CustomerResponse struct {
	UUID      string `json:"uuid"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	ServiceID string `json:"service_id"`
	CreatedAt string `json:"created_at"`
}

// ListCustomersRequest represents customer list filters
type ListCustomersRequest struct {
	Name  string `query:"name" validate:"omitempty,max=255"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=1000"`
}

// ListCustomersResponse represents the customer list
type ListCustomersResponse struct {
	Items []CustomerResponse `json:"items"`
}

// UploadMediaRequest contains upload details passed from handler to flow.
// Token is consumed by the upload and never stored.
type UploadMediaRequest struct {
	CustomerUUID string `json:"-"`
	Token        string `json:"-"`
	FileType     string `json:"-"`
	FileName     string `json:"-"`
	Data         []byte `json:"-"`
}

// MediaResponse represents a provider media reference
type MediaResponse struct {
	UUID         string `json:"uuid"`
	CustomerUUID string `json:"customer_uuid"`
	FileID       string `json:"file_id"`
	FileName     string `json:"file_name"`
	FileType     string `json:"file_type"`
	CreatedAt    string `json:"created_at"`
}

// ListMediaResponse represents the media list of a customer
type ListMediaResponse struct {
	Items []MediaResponse `json:"items"`
}
