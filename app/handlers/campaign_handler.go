package handlers

import (
	"github.com/amirphl/Amaterasu/app/dto"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	SelectMedia(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	responder
	campaignFlow businessflow.CampaignFlow
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		responder:    newResponder(),
		campaignFlow: campaignFlow,
	}
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.CreateCampaign(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/{uuid}")
	defer cancel()

	result, err := h.campaignFlow.GetCampaign(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get campaign", "CAMPAIGN_GET_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	req := dto.ListCampaignsRequest{
		CustomerUUID: c.Query("customer_uuid"),
		Name:         c.Query("name"),
		Limit:        queryLimit(c),
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.ListCampaigns(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// SelectMedia changes the campaign media before its first run
// @Router /api/v1/campaigns/{uuid}/media [put]
func (h *CampaignHandler) SelectMedia(c fiber.Ctx) error {
	var req dto.SelectCampaignMediaRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	req.CampaignUUID = c.Params("uuid")

	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/{uuid}/media")
	defer cancel()

	result, err := h.campaignFlow.SelectMedia(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to update campaign media", "CAMPAIGN_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign media updated successfully", result)
}
