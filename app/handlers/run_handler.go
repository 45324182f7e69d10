package handlers

import (
	"fmt"

	"github.com/amirphl/Amaterasu/app/dto"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/gofiber/fiber/v3"
)

// RunHandlerInterface defines the contract for scheduled run and run registry handlers
type RunHandlerInterface interface {
	Schedule(c fiber.Ctx) error
	GetScheduledRun(c fiber.Ctx) error
	ListScheduledRuns(c fiber.Ctx) error
	SupplyToken(c fiber.Ctx) error
	Cancel(c fiber.Ctx) error
	RunNow(c fiber.Ctx) error
	SendTest(c fiber.Ctx) error
	GetRun(c fiber.Ctx) error
	ListRuns(c fiber.Ctx) error
	GetRunLog(c fiber.Ctx) error
	AppendRunLog(c fiber.Ctx) error
	DownloadRunResult(c fiber.Ctx) error
}

// RunHandler handles campaign execution requests
type RunHandler struct {
	responder
	runFlow      businessflow.CampaignRunFlow
	registryFlow businessflow.RunRegistryFlow
}

func NewRunHandler(runFlow businessflow.CampaignRunFlow, registryFlow businessflow.RunRegistryFlow) *RunHandler {
	return &RunHandler{
		responder:    newResponder(),
		runFlow:      runFlow,
		registryFlow: registryFlow,
	}
}

// Schedule creates a pending scheduled run
// @Summary Schedule Campaign Run
// @Tags Runs
// @Accept json
// @Produce json
// @Param request body dto.ScheduleRunRequest true "Schedule data"
// @Success 201 {object} dto.APIResponse{data=dto.ScheduledRunResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 422 {object} dto.APIResponse "Campaign cannot be scheduled"
// @Router /api/v1/scheduled-runs [post]
func (h *RunHandler) Schedule(c fiber.Ctx) error {
	var req dto.ScheduleRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/scheduled-runs")
	defer cancel()

	result, err := h.runFlow.Schedule(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to schedule campaign", "SCHEDULE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign scheduled successfully", result)
}

// @Router /api/v1/scheduled-runs/{uuid} [get]
func (h *RunHandler) GetScheduledRun(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/scheduled-runs/{uuid}")
	defer cancel()

	result, err := h.runFlow.GetScheduledRun(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get scheduled run", "SCHEDULED_RUN_GET_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled run retrieved successfully", result)
}

// @Router /api/v1/scheduled-runs [get]
func (h *RunHandler) ListScheduledRuns(c fiber.Ctx) error {
	req := dto.ListScheduledRunsRequest{Limit: queryLimit(c)}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/scheduled-runs")
	defer cancel()

	result, err := h.runFlow.ListScheduledRuns(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list scheduled runs", "SCHEDULED_RUN_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled runs retrieved successfully", result)
}

// SupplyToken hands the provider credential to a waiting scheduled run and
// executes it. The response carries the resulting run, which may be failed.
// @Router /api/v1/scheduled-runs/{uuid}/token [post]
func (h *RunHandler) SupplyToken(c fiber.Ctx) error {
	var req dto.SupplyTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", nil)
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	req.ScheduledRunUUID = c.Params("uuid")

	ctx, cancel := createRequestContext(c, "/api/v1/scheduled-runs/{uuid}/token")
	defer cancel()

	result, err := h.runFlow.SupplyToken(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to execute scheduled run", "SUPPLY_TOKEN_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled run executed", result)
}

// @Router /api/v1/scheduled-runs/{uuid}/cancel [post]
func (h *RunHandler) Cancel(c fiber.Ctx) error {
	req := dto.CancelScheduledRunRequest{ScheduledRunUUID: c.Params("uuid")}

	ctx, cancel := createRequestContext(c, "/api/v1/scheduled-runs/{uuid}/cancel")
	defer cancel()

	result, err := h.runFlow.Cancel(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to cancel scheduled run", "CANCEL_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled run canceled", result)
}

// @Router /api/v1/campaigns/{uuid}/run [post]
func (h *RunHandler) RunNow(c fiber.Ctx) error {
	var req dto.RunNowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", nil)
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	req.CampaignUUID = c.Params("uuid")

	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/{uuid}/run")
	defer cancel()

	result, err := h.runFlow.RunNow(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to run campaign", "RUN_NOW_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign executed", result)
}

// @Router /api/v1/campaigns/{uuid}/test [post]
func (h *RunHandler) SendTest(c fiber.Ctx) error {
	var req dto.SendTestRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", nil)
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	req.CampaignUUID = c.Params("uuid")

	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/{uuid}/test")
	defer cancel()

	result, err := h.runFlow.SendTest(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to send test message", "SEND_TEST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Test message processed", result)
}

// @Router /api/v1/runs/{uuid} [get]
func (h *RunHandler) GetRun(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/runs/{uuid}")
	defer cancel()

	result, err := h.registryFlow.GetRun(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get run", "RUN_GET_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Run retrieved successfully", result)
}

// ListRuns serves the runs dashboard
// @Router /api/v1/runs [get]
func (h *RunHandler) ListRuns(c fiber.Ctx) error {
	req := dto.ListRunsRequest{
		Status:       c.Query("status"),
		CustomerUUID: c.Query("customer_uuid"),
		Query:        c.Query("q"),
		Limit:        queryLimit(c),
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/runs")
	defer cancel()

	result, err := h.registryFlow.ListRuns(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list runs", "RUN_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Runs retrieved successfully", result)
}

// @Router /api/v1/runs/{uuid}/log [get]
func (h *RunHandler) GetRunLog(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/runs/{uuid}/log")
	defer cancel()

	result, err := h.registryFlow.GetLog(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get run log", "RUN_LOG_GET_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Run log retrieved successfully", result)
}

// @Router /api/v1/runs/{uuid}/log [post]
func (h *RunHandler) AppendRunLog(c fiber.Ctx) error {
	var req dto.AppendRunLogRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	req.RunUUID = c.Params("uuid")

	ctx, cancel := createRequestContext(c, "/api/v1/runs/{uuid}/log")
	defer cancel()

	if err := h.registryFlow.AppendLog(ctx, &req); err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to append run log", "RUN_LOG_APPEND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Run log appended", nil)
}

// DownloadRunResult streams the result artifact as an attachment
// @Router /api/v1/runs/{uuid}/result [get]
func (h *RunHandler) DownloadRunResult(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/runs/{uuid}/result")
	defer cancel()

	result, err := h.registryFlow.GetResult(ctx, c.Params("uuid"))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get run result", "RUN_RESULT_GET_FAILED")
	}

	c.Set(fiber.HeaderContentType, result.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", result.FileName))
	return c.Status(fiber.StatusOK).Send(result.Content)
}
