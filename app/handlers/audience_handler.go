package handlers

import (
	"io"

	"github.com/amirphl/Amaterasu/app/dto"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AudienceHandler handles audience snapshot uploads
type AudienceHandler struct {
	responder
	flow businessflow.AudienceFlow
}

func NewAudienceHandler(flow businessflow.AudienceFlow) *AudienceHandler {
	return &AudienceHandler{responder: newResponder(), flow: flow}
}

// Upload accepts a csv or xlsx file with phone_number and link columns
// @Router /api/v1/audience/upload [post]
func (h *AudienceHandler) Upload(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "file is required", "INVALID_FILE", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "invalid file", "INVALID_FILE", err.Error())
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "invalid file", "INVALID_FILE", err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/audience/upload")
	defer cancel()

	result, err := h.flow.UploadAudience(ctx, &dto.UploadAudienceRequest{FileName: fileHeader.Filename, Data: data})
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Audience upload failed", "AUDIENCE_UPLOAD_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// @Router /api/v1/audience/{uuid} [get]
func (h *AudienceHandler) Get(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/audience/{uuid}")
	defer cancel()

	result, err := h.flow.GetAudience(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get audience snapshot", "AUDIENCE_GET_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Audience snapshot retrieved successfully", result)
}
