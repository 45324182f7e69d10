package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
)

const (
	runLockTTL = time.Minute

	cancelReasonOperator    = "canceled by operator"
	cancelReasonWaitExpired = "credential wait expired"
)

// CampaignRunFlow is the scheduled-run state machine and the credential-gated triggers
type CampaignRunFlow interface {
	Schedule(ctx context.Context, req *dto.ScheduleRunRequest) (*dto.ScheduledRunResponse, error)
	SupplyToken(ctx context.Context, req *dto.SupplyTokenRequest) (*dto.RunResponse, error)
	Cancel(ctx context.Context, req *dto.CancelScheduledRunRequest) (*dto.ScheduledRunResponse, error)
	RunNow(ctx context.Context, req *dto.RunNowRequest) (*dto.RunResponse, error)
	SendTest(ctx context.Context, req *dto.SendTestRequest) (*dto.RunResponse, error)
	GetScheduledRun(ctx context.Context, scheduledRunUUID string) (*dto.ScheduledRunResponse, error)
	ListScheduledRuns(ctx context.Context, req *dto.ListScheduledRunsRequest) (*dto.ListScheduledRunsResponse, error)

	// Watchdog operations
	AdvanceDueRuns(ctx context.Context, now time.Time) (int, error)
	ExpireWaitingRuns(ctx context.Context, now time.Time) (int, error)
	FailStaleRuns(ctx context.Context, now time.Time) (int, error)
}

// CampaignRunFlowImpl implements CampaignRunFlow
type CampaignRunFlowImpl struct {
	campaignRepo     repository.CampaignRepository
	scheduledRunRepo repository.ScheduledRunRepository
	runRepo          repository.RunRecordRepository
	executor         *Executor
	locker           Locker
	schedulerCfg     config.SchedulerConfig
	executorCfg      config.ExecutorConfig
	displayCfg       config.DisplayConfig
	logger           *log.Logger
}

// NewCampaignRunFlow creates a new campaign run flow instance
func NewCampaignRunFlow(
	campaignRepo repository.CampaignRepository,
	scheduledRunRepo repository.ScheduledRunRepository,
	runRepo repository.RunRecordRepository,
	executor *Executor,
	locker Locker,
	schedulerCfg config.SchedulerConfig,
	executorCfg config.ExecutorConfig,
	displayCfg config.DisplayConfig,
	logger *log.Logger,
) CampaignRunFlow {
	if schedulerCfg.BatchSize <= 0 {
		schedulerCfg.BatchSize = 100
	}
	if schedulerCfg.RunLockWait <= 0 {
		schedulerCfg.RunLockWait = 5 * time.Second
	}
	if executorCfg.CampaignLockTTL <= 0 {
		executorCfg.CampaignLockTTL = 6 * time.Hour
	}
	if displayCfg.Timezone == "" {
		displayCfg.Timezone = utils.DefaultDisplayTimezone
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CampaignRunFlowImpl{
		campaignRepo:     campaignRepo,
		scheduledRunRepo: scheduledRunRepo,
		runRepo:          runRepo,
		executor:         executor,
		locker:           locker,
		schedulerCfg:     schedulerCfg,
		executorCfg:      executorCfg,
		displayCfg:       displayCfg,
		logger:           logger,
	}
}

// Schedule records the intent to run a campaign at an absolute instant
func (f *CampaignRunFlowImpl) Schedule(ctx context.Context, req *dto.ScheduleRunRequest) (*dto.ScheduledRunResponse, error) {
	campaign, err := f.campaignRepo.ByUUID(ctx, req.CampaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("UNKNOWN_CAMPAIGN", "Campaign does not exist", ErrUnknownCampaign)
	}
	if !campaign.HasAudience() {
		return nil, NewBusinessError("AUDIENCE_SNAPSHOT_REQUIRED", "Campaign has no audience snapshot", ErrAudienceSnapshotRequired)
	}
	if !campaign.HasPlaceholder() {
		return nil, NewBusinessError("TEMPLATE_PLACEHOLDER_MISSING", "Message template must contain the link placeholder", ErrTemplatePlaceholderMissing)
	}

	runAt, err := f.resolveRunAt(req)
	if err != nil {
		return nil, err
	}

	sr := &models.ScheduledRun{
		CampaignID: campaign.ID,
		RunAt:      runAt,
		Status:     models.ScheduledRunStatusScheduled,
	}
	if err := f.scheduledRunRepo.Save(ctx, sr); err != nil {
		return nil, NewBusinessError("SCHEDULE_FAILED", "Failed to schedule run", err)
	}
	f.logger.Printf("scheduled run %s for campaign %s at %s", sr.UUID, campaign.UUID, sr.RunAt.Format(time.RFC3339))

	resp := f.scheduledRunResponse(sr, campaign.UUID)
	resp.CampaignName = campaign.Name
	return resp, nil
}

func (f *CampaignRunFlowImpl) resolveRunAt(req *dto.ScheduleRunRequest) (time.Time, error) {
	if req.RunAt != nil && !req.RunAt.IsZero() {
		return req.RunAt.UTC(), nil
	}
	if req.LocalRunAt == "" {
		return time.Time{}, NewBusinessError("RUN_AT_REQUIRED", "run_at is required", ErrRunAtRequired)
	}
	zone := req.Timezone
	if zone == "" {
		zone = f.displayCfg.Timezone
	}
	if _, err := utils.LoadLocation(zone); err != nil {
		return time.Time{}, NewBusinessError("INVALID_TIMEZONE", "Unknown timezone", errors.Join(ErrInvalidTimezone, err))
	}
	runAt, err := utils.ParseDisplayTime(req.LocalRunAt, zone)
	if err != nil {
		return time.Time{}, NewBusinessError("INVALID_LOCAL_RUN_AT", "local_run_at must be formatted as YYYY-MM-DD HH:MM", errors.Join(ErrInvalidLocalRunAt, err))
	}
	return runAt, nil
}

// SupplyToken is the only way past waiting_token. The per-run lock orders it
// against the watchdog and cancel, and the status CAS makes the transition
// to running happen at most once.
func (f *CampaignRunFlowImpl) SupplyToken(ctx context.Context, req *dto.SupplyTokenRequest) (*dto.RunResponse, error) {
	cred, err := services.NewCredential(req.Token)
	req.Token = ""
	if err != nil {
		return nil, NewBusinessError("CREDENTIAL_REQUIRED", "Credential is required", ErrCredentialRequired)
	}
	defer cred.Wipe()

	sr, err := f.scheduledRunByUUID(ctx, req.ScheduledRunUUID)
	if err != nil {
		return nil, err
	}

	releaseRun, ok, err := lockWithWait(ctx, f.locker, runLockKey(sr.ID), runLockTTL, f.schedulerCfg.RunLockWait)
	if err != nil {
		return nil, NewBusinessError("RUN_LOCK_FAILED", "Failed to lock scheduled run", err)
	}
	if !ok {
		runConflictsTotal.WithLabelValues("run_locked").Inc()
		return nil, NewBusinessError("SCHEDULED_RUN_BUSY", "Scheduled run is being processed by another request", ErrScheduledRunBusy)
	}
	runLocked := true
	defer func() {
		if runLocked {
			releaseRun()
		}
	}()

	// re-read under the lock
	sr, err = f.scheduledRunRepo.ByID(ctx, sr.ID)
	if err != nil {
		return nil, NewBusinessError("SCHEDULED_RUN_LOOKUP_FAILED", "Failed to lookup scheduled run", err)
	}
	if sr == nil {
		return nil, NewBusinessError("SCHEDULED_RUN_NOT_FOUND", "Scheduled run not found", ErrScheduledRunNotFound)
	}
	if !sr.Status.IsPending() {
		runConflictsTotal.WithLabelValues("not_pending").Inc()
		return nil, NewBusinessErrorf("SCHEDULED_RUN_NOT_READY", "Scheduled run is already %s", ErrScheduledRunNotReady, sr.Status)
	}

	campaign, err := f.campaignRepo.ByID(ctx, sr.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	plan, err := f.executor.Prepare(ctx, campaign, models.RunTriggerScheduled, "")
	if err != nil {
		return nil, err
	}

	releaseCampaign, err := f.acquireCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	defer releaseCampaign()

	swapped, err := f.scheduledRunRepo.CompareAndSwapStatus(ctx, sr.ID, models.PendingScheduledRunStatuses, models.ScheduledRunStatusRunning, nil)
	if err != nil {
		return nil, NewBusinessError("SCHEDULED_RUN_TRANSITION_FAILED", "Failed to start scheduled run", err)
	}
	if !swapped {
		runConflictsTotal.WithLabelValues("not_pending").Inc()
		return nil, NewBusinessError("SCHEDULED_RUN_NOT_READY", "Scheduled run is already running or finished", ErrScheduledRunNotReady)
	}
	runLocked = false
	releaseRun()

	run, execErr := f.executor.Execute(ctx, plan, cred, &sr.ID)
	finCtx := context.WithoutCancel(ctx)
	if run == nil {
		// nothing was sent; put the run back where it was
		if _, err := f.scheduledRunRepo.CompareAndSwapStatus(finCtx, sr.ID,
			[]models.ScheduledRunStatus{models.ScheduledRunStatusRunning}, sr.Status, nil); err != nil {
			f.logger.Printf("scheduled run %s: revert to %s failed: %v", sr.UUID, sr.Status, err)
		}
		return nil, execErr
	}

	final := models.ScheduledRunStatusFailed
	if run.Status == models.RunStatusSuccess {
		final = models.ScheduledRunStatusSuccess
	}
	if _, err := f.scheduledRunRepo.CompareAndSwapStatus(finCtx, sr.ID,
		[]models.ScheduledRunStatus{models.ScheduledRunStatusRunning}, final,
		map[string]any{"last_run_id": run.ID}); err != nil {
		f.logger.Printf("scheduled run %s: close as %s failed: %v", sr.UUID, final, err)
		if execErr == nil {
			execErr = NewBusinessError("SCHEDULED_RUN_TRANSITION_FAILED", "Failed to close scheduled run", err)
		}
	}
	if execErr != nil {
		return nil, execErr
	}

	resp := newRunResponse(run, campaign)
	srUUID := sr.UUID.String()
	resp.ScheduledRunUUID = &srUUID
	resp.CustomerUUID = plan.Customer.UUID.String()
	resp.CustomerName = plan.Customer.Name
	return resp, nil
}

// Cancel moves a pending scheduled run to canceled. No run record is created.
func (f *CampaignRunFlowImpl) Cancel(ctx context.Context, req *dto.CancelScheduledRunRequest) (*dto.ScheduledRunResponse, error) {
	sr, err := f.scheduledRunByUUID(ctx, req.ScheduledRunUUID)
	if err != nil {
		return nil, err
	}

	release, ok, err := lockWithWait(ctx, f.locker, runLockKey(sr.ID), runLockTTL, f.schedulerCfg.RunLockWait)
	if err != nil {
		return nil, NewBusinessError("RUN_LOCK_FAILED", "Failed to lock scheduled run", err)
	}
	if !ok {
		return nil, NewBusinessError("SCHEDULED_RUN_BUSY", "Scheduled run is being processed by another request", ErrScheduledRunBusy)
	}
	defer release()

	sr, err = f.scheduledRunRepo.ByID(ctx, sr.ID)
	if err != nil {
		return nil, NewBusinessError("SCHEDULED_RUN_LOOKUP_FAILED", "Failed to lookup scheduled run", err)
	}
	if sr == nil {
		return nil, NewBusinessError("SCHEDULED_RUN_NOT_FOUND", "Scheduled run not found", ErrScheduledRunNotFound)
	}
	if !sr.Status.IsPending() {
		return nil, NewBusinessErrorf("CANCEL_NOT_ALLOWED", "Cannot cancel a %s run", ErrCancelNotAllowed, sr.Status)
	}

	swapped, err := f.scheduledRunRepo.CompareAndSwapStatus(ctx, sr.ID, models.PendingScheduledRunStatuses,
		models.ScheduledRunStatusCanceled, map[string]any{"cancel_reason": cancelReasonOperator})
	if err != nil {
		return nil, NewBusinessError("SCHEDULED_RUN_TRANSITION_FAILED", "Failed to cancel scheduled run", err)
	}
	if !swapped {
		return nil, NewBusinessError("CANCEL_NOT_ALLOWED", "Scheduled run is no longer pending", ErrCancelNotAllowed)
	}

	sr.Status = models.ScheduledRunStatusCanceled
	sr.CancelReason = utils.ToPtr(cancelReasonOperator)
	sr.UpdatedAt = utils.UTCNow()

	campaign, err := f.campaignRepo.ByID(ctx, sr.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	var campaignUUID uuid.UUID
	if campaign != nil {
		campaignUUID = campaign.UUID
	}
	f.logger.Printf("scheduled run %s canceled", sr.UUID)
	return f.scheduledRunResponse(sr, campaignUUID), nil
}

// RunNow executes a campaign immediately, outside any schedule
func (f *CampaignRunFlowImpl) RunNow(ctx context.Context, req *dto.RunNowRequest) (*dto.RunResponse, error) {
	cred, err := services.NewCredential(req.Token)
	req.Token = ""
	if err != nil {
		return nil, NewBusinessError("CREDENTIAL_REQUIRED", "Credential is required", ErrCredentialRequired)
	}
	defer cred.Wipe()

	return f.trigger(ctx, req.CampaignUUID, cred, models.RunTriggerManual, "")
}

// SendTest sends the campaign to a single test destination
func (f *CampaignRunFlowImpl) SendTest(ctx context.Context, req *dto.SendTestRequest) (*dto.RunResponse, error) {
	cred, err := services.NewCredential(req.Token)
	req.Token = ""
	if err != nil {
		return nil, NewBusinessError("CREDENTIAL_REQUIRED", "Credential is required", ErrCredentialRequired)
	}
	defer cred.Wipe()

	return f.trigger(ctx, req.CampaignUUID, cred, models.RunTriggerTest, req.TestNumber)
}

func (f *CampaignRunFlowImpl) trigger(ctx context.Context, campaignUUID string, cred *services.Credential, trigger models.RunTrigger, testNumber string) (*dto.RunResponse, error) {
	campaign, err := f.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("UNKNOWN_CAMPAIGN", "Campaign does not exist", ErrUnknownCampaign)
	}

	plan, err := f.executor.Prepare(ctx, campaign, trigger, testNumber)
	if err != nil {
		return nil, err
	}

	release, err := f.acquireCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := f.executor.Execute(ctx, plan, cred, nil)
	if err != nil {
		return nil, err
	}

	resp := newRunResponse(run, campaign)
	resp.CustomerUUID = plan.Customer.UUID.String()
	resp.CustomerName = plan.Customer.Name
	return resp, nil
}

// acquireCampaign takes the per-campaign execution lock without waiting
func (f *CampaignRunFlowImpl) acquireCampaign(ctx context.Context, campaignID uint) (func(), error) {
	release, ok, err := f.locker.TryLock(ctx, campaignLockKey(campaignID), f.executorCfg.CampaignLockTTL)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCK_FAILED", "Failed to lock campaign", err)
	}
	if !ok {
		runConflictsTotal.WithLabelValues("campaign_busy").Inc()
		return nil, NewBusinessError("CAMPAIGN_RUN_IN_PROGRESS", "Campaign already has a run in progress", ErrCampaignRunInProgress)
	}
	return release, nil
}

func (f *CampaignRunFlowImpl) GetScheduledRun(ctx context.Context, scheduledRunUUID string) (*dto.ScheduledRunResponse, error) {
	sr, err := f.scheduledRunByUUID(ctx, scheduledRunUUID)
	if err != nil {
		return nil, err
	}
	campaign, err := f.campaignRepo.ByID(ctx, sr.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	var campaignUUID uuid.UUID
	var campaignName string
	if campaign != nil {
		campaignUUID = campaign.UUID
		campaignName = campaign.Name
	}
	resp := f.scheduledRunResponse(sr, campaignUUID)
	resp.CampaignName = campaignName
	if sr.LastRunID != nil {
		if run, err := f.runRepo.ByID(ctx, *sr.LastRunID); err == nil && run != nil {
			resp.LastRunUUID = utils.ToPtr(run.UUID.String())
		}
	}
	return resp, nil
}

func (f *CampaignRunFlowImpl) ListScheduledRuns(ctx context.Context, req *dto.ListScheduledRunsRequest) (*dto.ListScheduledRunsResponse, error) {
	limit := utils.ClampLimit(req.Limit, utils.DefaultScheduledRunListLimit, utils.MaxRunListLimit)
	views, err := f.scheduledRunRepo.ListViews(ctx, limit)
	if err != nil {
		return nil, NewBusinessError("SCHEDULED_RUN_LIST_FAILED", "Failed to list scheduled runs", err)
	}

	items := make([]dto.ScheduledRunResponse, 0, len(views))
	for _, v := range views {
		item := f.scheduledRunResponse(&v.ScheduledRun, v.CampaignUUID)
		item.CampaignName = v.CampaignName
		item.CustomerName = v.CustomerName
		if v.LastRunUUID != nil {
			item.LastRunUUID = utils.ToPtr(v.LastRunUUID.String())
		}
		items = append(items, *item)
	}
	return &dto.ListScheduledRunsResponse{Items: items}, nil
}

// AdvanceDueRuns moves due scheduled runs to waiting_token. Runs locked by a
// concurrent request are left for the next tick.
func (f *CampaignRunFlowImpl) AdvanceDueRuns(ctx context.Context, now time.Time) (int, error) {
	due, err := f.scheduledRunRepo.ListDue(ctx, now, f.schedulerCfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	advanced := 0
	for _, sr := range due {
		ok, err := f.transitionLocked(ctx, sr, []models.ScheduledRunStatus{models.ScheduledRunStatusScheduled},
			models.ScheduledRunStatusWaitingToken, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("scheduled run %s: %w", sr.UUID, err))
			continue
		}
		if ok {
			advanced++
			watchdogTransitionsTotal.WithLabelValues("waiting_token").Inc()
		}
	}
	return advanced, errors.Join(errs...)
}

// ExpireWaitingRuns cancels runs that waited for a credential longer than
// the configured bound. A zero bound waits forever.
func (f *CampaignRunFlowImpl) ExpireWaitingRuns(ctx context.Context, now time.Time) (int, error) {
	if f.schedulerCfg.TokenWaitTimeout <= 0 {
		return 0, nil
	}
	waiting, err := f.scheduledRunRepo.ListWaitingSince(ctx, now.Add(-f.schedulerCfg.TokenWaitTimeout), f.schedulerCfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	expired := 0
	for _, sr := range waiting {
		ok, err := f.transitionLocked(ctx, sr, []models.ScheduledRunStatus{models.ScheduledRunStatusWaitingToken},
			models.ScheduledRunStatusCanceled, map[string]any{"cancel_reason": cancelReasonWaitExpired})
		if err != nil {
			errs = append(errs, fmt.Errorf("scheduled run %s: %w", sr.UUID, err))
			continue
		}
		if ok {
			expired++
			watchdogTransitionsTotal.WithLabelValues("expired").Inc()
		}
	}
	return expired, errors.Join(errs...)
}

// FailStaleRuns closes runs left running by a process that stopped mid-execution
func (f *CampaignRunFlowImpl) FailStaleRuns(ctx context.Context, now time.Time) (int, error) {
	if f.schedulerCfg.StaleRunAfter <= 0 {
		return 0, nil
	}
	before := now.Add(-f.schedulerCfg.StaleRunAfter)
	status := models.RunStatusRunning
	stale, err := f.runRepo.ByFilter(ctx, models.RunRecordFilter{Status: &status, StartedBefore: &before}, "started_at ASC", f.schedulerCfg.BatchSize, 0)
	if err != nil {
		return 0, err
	}

	var errs []error
	failed := 0
	for _, run := range stale {
		line := fmt.Sprintf("%s run abandoned before finishing, marked failed\n", utils.UTCNow().Format(time.RFC3339))
		if _, err := f.runRepo.AppendLog(ctx, run.ID, line); err != nil {
			errs = append(errs, err)
			continue
		}
		run.Status = models.RunStatusFailed
		run.ErrorKind = utils.ToPtr(string(KindInternal))
		run.ErrorMessage = utils.ToPtr("run abandoned before finishing")
		run.FinishedAt = utils.UTCNowPtr()
		closed, err := f.runRepo.Finish(ctx, run)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !closed {
			continue
		}
		failed++
		watchdogTransitionsTotal.WithLabelValues("stale_failed").Inc()
		runsFinishedTotal.WithLabelValues(run.Trigger.String(), run.Status.String()).Inc()

		if run.ScheduledRunID != nil {
			if _, err := f.scheduledRunRepo.CompareAndSwapStatus(ctx, *run.ScheduledRunID,
				[]models.ScheduledRunStatus{models.ScheduledRunStatusRunning}, models.ScheduledRunStatusFailed,
				map[string]any{"last_run_id": run.ID}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return failed, errors.Join(errs...)
}

// transitionLocked applies a status CAS while holding the per-run lock.
// A busy lock is not an error; the run is skipped.
func (f *CampaignRunFlowImpl) transitionLocked(
	ctx context.Context,
	sr *models.ScheduledRun,
	from []models.ScheduledRunStatus,
	to models.ScheduledRunStatus,
	extra map[string]any,
) (bool, error) {
	release, ok, err := f.locker.TryLock(ctx, runLockKey(sr.ID), runLockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer release()

	return f.scheduledRunRepo.CompareAndSwapStatus(ctx, sr.ID, from, to, extra)
}

func (f *CampaignRunFlowImpl) scheduledRunByUUID(ctx context.Context, id string) (*models.ScheduledRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, NewBusinessError("SCHEDULED_RUN_NOT_FOUND", "Scheduled run not found", ErrScheduledRunNotFound)
	}
	sr, err := f.scheduledRunRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("SCHEDULED_RUN_LOOKUP_FAILED", "Failed to lookup scheduled run", err)
	}
	if sr == nil {
		return nil, NewBusinessError("SCHEDULED_RUN_NOT_FOUND", "Scheduled run not found", ErrScheduledRunNotFound)
	}
	return sr, nil
}

func (f *CampaignRunFlowImpl) scheduledRunResponse(sr *models.ScheduledRun, campaignUUID uuid.UUID) *dto.ScheduledRunResponse {
	display, err := utils.FormatDisplayTime(sr.RunAt, f.displayCfg.Timezone)
	if err != nil {
		display = sr.RunAt.UTC().Format(utils.DisplayLayout)
	}
	return &dto.ScheduledRunResponse{
		UUID:         sr.UUID.String(),
		CampaignUUID: campaignUUID.String(),
		RunAt:        sr.RunAt.UTC(),
		RunAtDisplay: display,
		Status:       sr.Status.String(),
		CancelReason: sr.CancelReason,
		CreatedAt:    sr.CreatedAt,
		UpdatedAt:    sr.UpdatedAt,
	}
}
