package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
)

// RunRegistryFlow serves run queries, log streaming and result downloads
type RunRegistryFlow interface {
	GetRun(ctx context.Context, runUUID string) (*dto.RunResponse, error)
	ListRuns(ctx context.Context, req *dto.ListRunsRequest) (*dto.ListRunsResponse, error)
	AppendLog(ctx context.Context, req *dto.AppendRunLogRequest) error
	GetLog(ctx context.Context, runUUID string) (*dto.RunLogResponse, error)
	GetResult(ctx context.Context, runUUID string) (*dto.RunResultResponse, error)
}

// RunRegistryFlowImpl implements RunRegistryFlow
type RunRegistryFlowImpl struct {
	runRepo          repository.RunRecordRepository
	artifactRepo     repository.RunArtifactRepository
	customerRepo     repository.CustomerRepository
	scheduledRunRepo repository.ScheduledRunRepository
}

func NewRunRegistryFlow(
	runRepo repository.RunRecordRepository,
	artifactRepo repository.RunArtifactRepository,
	customerRepo repository.CustomerRepository,
	scheduledRunRepo repository.ScheduledRunRepository,
) RunRegistryFlow {
	return &RunRegistryFlowImpl{
		runRepo:          runRepo,
		artifactRepo:     artifactRepo,
		customerRepo:     customerRepo,
		scheduledRunRepo: scheduledRunRepo,
	}
}

func (f *RunRegistryFlowImpl) GetRun(ctx context.Context, runUUID string) (*dto.RunResponse, error) {
	run, err := f.runByUUID(ctx, runUUID)
	if err != nil {
		return nil, err
	}

	views, err := f.runRepo.ListViews(ctx, models.RunRecordFilter{ID: &run.ID}, 1)
	if err != nil {
		return nil, NewBusinessError("RUN_LOOKUP_FAILED", "Failed to lookup run", err)
	}
	if len(views) == 0 {
		return nil, NewBusinessError("RUN_NOT_FOUND", "Run not found", ErrRunNotFound)
	}
	resp := runViewResponse(views[0])

	if run.ScheduledRunID != nil {
		sr, err := f.scheduledRunRepo.ByID(ctx, *run.ScheduledRunID)
		if err != nil {
			return nil, NewBusinessError("SCHEDULED_RUN_LOOKUP_FAILED", "Failed to lookup scheduled run", err)
		}
		if sr != nil {
			resp.ScheduledRunUUID = utils.ToPtr(sr.UUID.String())
		}
	}
	return resp, nil
}

// ListRuns returns runs newest first, filtered by status, customer and a
// free-text match on campaign or customer name
func (f *RunRegistryFlowImpl) ListRuns(ctx context.Context, req *dto.ListRunsRequest) (*dto.ListRunsResponse, error) {
	filter := models.RunRecordFilter{}

	if req.Status != "" {
		status := models.RunStatus(req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("INVALID_RUN_STATUS", "Invalid run status", ErrInvalidRunStatus)
		}
		filter.Status = &status
	}
	if req.CustomerUUID != "" {
		customer, err := f.customerRepo.ByUUID(ctx, req.CustomerUUID)
		if err != nil {
			return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
		}
		if customer == nil {
			return nil, NewBusinessError("UNKNOWN_CUSTOMER", "Customer does not exist", ErrUnknownCustomer)
		}
		filter.CustomerID = &customer.ID
	}
	if req.Query != "" {
		filter.Query = &req.Query
	}

	limit := utils.ClampLimit(req.Limit, utils.DefaultRunListLimit, utils.MaxRunListLimit)
	views, err := f.runRepo.ListViews(ctx, filter, limit)
	if err != nil {
		return nil, NewBusinessError("RUN_LIST_FAILED", "Failed to list runs", err)
	}

	items := make([]dto.RunResponse, 0, len(views))
	for _, v := range views {
		items = append(items, *runViewResponse(v))
	}
	return &dto.ListRunsResponse{Items: items}, nil
}

// AppendLog adds a chunk to the log of a running run. Finished runs are immutable.
func (f *RunRegistryFlowImpl) AppendLog(ctx context.Context, req *dto.AppendRunLogRequest) error {
	if req.Chunk == "" {
		return NewBusinessError("LOG_CHUNK_REQUIRED", "Log chunk is required", ErrLogChunkRequired)
	}
	run, err := f.runByUUID(ctx, req.RunUUID)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusRunning {
		return NewBusinessErrorf("RUN_NOT_RUNNING", "Run is already %s", ErrRunNotRunning, run.Status)
	}

	ok, err := f.runRepo.AppendLog(ctx, run.ID, req.Chunk)
	if err != nil {
		return NewBusinessError("RUN_LOG_APPEND_FAILED", "Failed to append run log", err)
	}
	if !ok {
		return NewBusinessError("RUN_NOT_RUNNING", "Run is no longer running", ErrRunNotRunning)
	}
	return nil
}

func (f *RunRegistryFlowImpl) GetLog(ctx context.Context, runUUID string) (*dto.RunLogResponse, error) {
	run, err := f.runByUUID(ctx, runUUID)
	if err != nil {
		return nil, err
	}
	return &dto.RunLogResponse{
		UUID:   run.UUID.String(),
		Status: run.Status.String(),
		Log:    run.Log,
	}, nil
}

func (f *RunRegistryFlowImpl) GetResult(ctx context.Context, runUUID string) (*dto.RunResultResponse, error) {
	run, err := f.runByUUID(ctx, runUUID)
	if err != nil {
		return nil, err
	}
	artifact, err := f.artifactRepo.ByRunID(ctx, run.ID)
	if err != nil {
		return nil, NewBusinessError("RUN_RESULT_LOOKUP_FAILED", "Failed to lookup run result", err)
	}
	if artifact == nil {
		return nil, NewBusinessError("RUN_RESULT_NOT_FOUND", "Run has no result", ErrRunResultNotFound)
	}
	return &dto.RunResultResponse{
		FileName:    artifact.FileName,
		ContentType: artifact.ContentType,
		Content:     artifact.Content,
	}, nil
}

func (f *RunRegistryFlowImpl) runByUUID(ctx context.Context, id string) (*models.RunRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, NewBusinessError("RUN_NOT_FOUND", "Run not found", ErrRunNotFound)
	}
	run, err := f.runRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("RUN_LOOKUP_FAILED", "Failed to lookup run", err)
	}
	if run == nil {
		return nil, NewBusinessError("RUN_NOT_FOUND", "Run not found", ErrRunNotFound)
	}
	return run, nil
}

func runLogURL(runUUID uuid.UUID) string {
	return fmt.Sprintf("/api/v1/runs/%s/log", runUUID)
}

func runResultURL(runUUID uuid.UUID) string {
	return fmt.Sprintf("/api/v1/runs/%s/result", runUUID)
}

func newRunResponse(run *models.RunRecord, campaign *models.Campaign) *dto.RunResponse {
	resp := &dto.RunResponse{
		UUID:         run.UUID.String(),
		Trigger:      run.Trigger.String(),
		Status:       run.Status.String(),
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Destinations: run.Destinations,
		Sent:         run.Sent,
		Failed:       run.Failed,
		ErrorKind:    run.ErrorKind,
		ErrorMessage: run.ErrorMessage,
		ResultRef:    run.ResultRef,
		HasLog:       run.Log != "",
		HasResult:    run.ResultRef != nil,
		LogURL:       runLogURL(run.UUID),
	}
	if campaign != nil {
		resp.CampaignUUID = campaign.UUID.String()
		resp.CampaignName = campaign.Name
	}
	if resp.HasResult {
		resp.ResultURL = utils.ToPtr(runResultURL(run.UUID))
	}
	return resp
}

func runViewResponse(v *models.RunRecordView) *dto.RunResponse {
	resp := newRunResponse(&v.RunRecord, nil)
	resp.CampaignUUID = v.CampaignUUID.String()
	resp.CampaignName = v.CampaignName
	resp.CustomerUUID = v.CustomerUUID.String()
	resp.CustomerName = v.CustomerName
	resp.HasLog = v.HasLog
	resp.HasResult = v.HasResult
	if v.HasResult {
		resp.ResultURL = utils.ToPtr(runResultURL(v.UUID))
	} else {
		resp.ResultURL = nil
	}
	return resp
}
