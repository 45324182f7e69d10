package handlers

import (
	"io"

	"github.com/amirphl/Amaterasu/app/dto"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CustomerHandlerInterface defines the contract for customer handlers
type CustomerHandlerInterface interface {
	CreateCustomer(c fiber.Ctx) error
	GetCustomer(c fiber.Ctx) error
	ListCustomers(c fiber.Ctx) error
	UploadMedia(c fiber.Ctx) error
	ListMedia(c fiber.Ctx) error
}

// CustomerHandler handles customer and media HTTP requests
type CustomerHandler struct {
	responder
	customerFlow businessflow.CustomerFlow
	mediaFlow    businessflow.MediaFlow
}

func NewCustomerHandler(customerFlow businessflow.CustomerFlow, mediaFlow businessflow.MediaFlow) *CustomerHandler {
	return &CustomerHandler{
		responder:    newResponder(),
		customerFlow: customerFlow,
		mediaFlow:    mediaFlow,
	}
}

// CreateCustomer registers a customer
// @Router /api/v1/customers [post]
func (h *CustomerHandler) CreateCustomer(c fiber.Ctx) error {
	var req dto.CreateCustomerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/customers")
	defer cancel()

	result, err := h.customerFlow.CreateCustomer(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Customer creation failed", "CUSTOMER_CREATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Customer created successfully", result)
}

// @Router /api/v1/customers/{uuid} [get]
func (h *CustomerHandler) GetCustomer(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/customers/{uuid}")
	defer cancel()

	result, err := h.customerFlow.GetCustomer(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get customer", "CUSTOMER_GET_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Customer retrieved successfully", result)
}

// @Router /api/v1/customers [get]
func (h *CustomerHandler) ListCustomers(c fiber.Ctx) error {
	req := dto.ListCustomersRequest{
		Name:  c.Query("name"),
		Limit: queryLimit(c),
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/customers")
	defer cancel()

	result, err := h.customerFlow.ListCustomers(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list customers", "CUSTOMER_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Customers retrieved successfully", result)
}

// UploadMedia forwards a file to the messaging provider. The multipart token
// field is the provider credential and is consumed by this request only.
// @Router /api/v1/customers/{uuid}/media/upload [post]
func (h *CustomerHandler) UploadMedia(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "file is required", "INVALID_FILE", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "invalid file", "INVALID_FILE", nil)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "invalid file", "INVALID_FILE", nil)
	}

	req := dto.UploadMediaRequest{
		CustomerUUID: c.Params("uuid"),
		Token:        c.FormValue("token"),
		FileType:     c.FormValue("file_type"),
		FileName:     fileHeader.Filename,
		Data:         data,
	}

	ctx, cancel := createRequestContext(c, "/api/v1/customers/{uuid}/media/upload")
	defer cancel()

	result, err := h.mediaFlow.UploadMedia(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Media upload failed", "MEDIA_UPLOAD_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Media uploaded successfully", result)
}

// @Router /api/v1/customers/{uuid}/media [get]
func (h *CustomerHandler) ListMedia(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/customers/{uuid}/media")
	defer cancel()

	result, err := h.mediaFlow.ListMedia(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list media", "MEDIA_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Media retrieved successfully", result)
}
