package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/cenkalti/backoff/v5"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Per-destination delivery outcomes
const (
	deliveryAccepted     = "accepted"
	deliveryRejected     = "rejected"
	deliveryUnavailable  = "unavailable"
	deliveryUnauthorized = "unauthorized"
	deliverySkipped      = "skipped"
)

// Destination is one recipient with the link substituted into the template
type Destination struct {
	PhoneNumber string
	Link        string
}

// ExecutionPlan is a campaign that passed pre-flight and is ready to send.
// Building a plan never touches the provider and never opens a run.
type ExecutionPlan struct {
	Campaign     *models.Campaign
	Customer     *models.Customer
	Media        *models.CustomerMedia
	Trigger      models.RunTrigger
	Destinations []Destination
}

type deliveryResult struct {
	Destination     Destination
	Outcome         string
	ProviderStatus  string
	ProviderMessage string
	MessageID       string
	Attempts        int
	Err             error
}

// Executor performs campaign sends through the messaging provider and
// records each attempt as a RunRecord.
type Executor struct {
	runRepo      repository.RunRecordRepository
	artifactRepo repository.RunArtifactRepository
	audienceRepo repository.AudienceRepository
	customerRepo repository.CustomerRepository
	mediaRepo    repository.CustomerMediaRepository
	provider     services.MessagingProvider
	publisher    services.RunEventPublisher
	execCfg      config.ExecutorConfig
	providerCfg  config.ProviderConfig
	logger       *log.Logger
}

func NewExecutor(
	runRepo repository.RunRecordRepository,
	artifactRepo repository.RunArtifactRepository,
	audienceRepo repository.AudienceRepository,
	customerRepo repository.CustomerRepository,
	mediaRepo repository.CustomerMediaRepository,
	provider services.MessagingProvider,
	publisher services.RunEventPublisher,
	execCfg config.ExecutorConfig,
	providerCfg config.ProviderConfig,
	logger *log.Logger,
) *Executor {
	if execCfg.Workers <= 0 {
		execCfg.Workers = 5
	}
	if execCfg.DefaultTestNumber == "" {
		execCfg.DefaultTestNumber = utils.DefaultTestNumber
	}
	if providerCfg.MaxAttempts <= 0 {
		providerCfg.MaxAttempts = 3
	}
	if providerCfg.InitialBackoff <= 0 {
		providerCfg.InitialBackoff = 500 * time.Millisecond
	}
	if providerCfg.MaxBackoff <= 0 {
		providerCfg.MaxBackoff = 5 * time.Second
	}
	if providerCfg.RequestTimeout <= 0 {
		providerCfg.RequestTimeout = 30 * time.Second
	}
	if publisher == nil {
		publisher = services.NoopRunEventPublisher{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		runRepo:      runRepo,
		artifactRepo: artifactRepo,
		audienceRepo: audienceRepo,
		customerRepo: customerRepo,
		mediaRepo:    mediaRepo,
		provider:     provider,
		publisher:    publisher,
		execCfg:      execCfg,
		providerCfg:  providerCfg,
		logger:       logger,
	}
}

// Prepare runs the pre-flight checks and resolves destinations.
// testNumber is only consulted for test sends.
func (e *Executor) Prepare(ctx context.Context, campaign *models.Campaign, trigger models.RunTrigger, testNumber string) (*ExecutionPlan, error) {
	if campaign == nil {
		return nil, NewBusinessError("UNKNOWN_CAMPAIGN", "Campaign does not exist", ErrUnknownCampaign)
	}
	if !campaign.HasPlaceholder() {
		return nil, NewBusinessError("TEMPLATE_PLACEHOLDER_MISSING", "Message template must contain the link placeholder", ErrTemplatePlaceholderMissing)
	}

	customer, err := e.customerRepo.ByID(ctx, campaign.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	if customer == nil {
		return nil, NewBusinessError("UNKNOWN_CUSTOMER", "Campaign customer does not exist", ErrUnknownCustomer)
	}

	var media *models.CustomerMedia
	if campaign.SelectedMediaID != nil {
		media, err = e.mediaRepo.ByID(ctx, *campaign.SelectedMediaID)
		if err != nil {
			return nil, NewBusinessError("MEDIA_LOOKUP_FAILED", "Failed to lookup media", err)
		}
		if media == nil {
			return nil, NewBusinessError("MEDIA_NOT_FOUND", "Selected media does not exist", ErrMediaNotFound)
		}
		if media.CustomerID != campaign.CustomerID {
			return nil, NewBusinessError("MEDIA_OWNERSHIP_MISMATCH", "Selected media belongs to a different customer", ErrMediaOwnershipMismatch)
		}
	}

	if !campaign.HasAudience() {
		return nil, NewBusinessError("AUDIENCE_SNAPSHOT_REQUIRED", "Campaign has no audience snapshot", ErrAudienceSnapshotRequired)
	}

	limit := 0
	if trigger == models.RunTriggerTest {
		limit = 1
	}
	rows, err := e.audienceRepo.Rows(ctx, *campaign.AudienceSnapshotID, limit)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to load audience rows", err)
	}
	if len(rows) == 0 {
		return nil, NewBusinessError("AUDIENCE_EMPTY", "Audience snapshot has no rows", ErrAudienceEmpty)
	}

	plan := &ExecutionPlan{
		Campaign: campaign,
		Customer: customer,
		Media:    media,
		Trigger:  trigger,
	}

	if trigger == models.RunTriggerTest {
		number := utils.DigitsOnly(testNumber)
		if number == "" {
			number = utils.DigitsOnly(campaign.TestNumber)
		}
		if number == "" {
			number = e.execCfg.DefaultTestNumber
		}
		plan.Destinations = []Destination{{PhoneNumber: number, Link: rows[0].Link}}
		return plan, nil
	}

	plan.Destinations = make([]Destination, 0, len(rows))
	for _, row := range rows {
		plan.Destinations = append(plan.Destinations, Destination{PhoneNumber: row.PhoneNumber, Link: row.Link})
	}
	return plan, nil
}

// Execute opens a RunRecord, sends to every destination and closes the record.
// A failed delivery yields a failed record, not an error; an error means the
// record could not be opened or closed. Once opened the execution ignores
// cancellation of ctx.
func (e *Executor) Execute(ctx context.Context, plan *ExecutionPlan, cred *services.Credential, scheduledRunID *uint) (*models.RunRecord, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	run := &models.RunRecord{
		CampaignID:     plan.Campaign.ID,
		ScheduledRunID: scheduledRunID,
		Trigger:        plan.Trigger,
		Status:         models.RunStatusRunning,
		StartedAt:      utils.UTCNow(),
		Destinations:   len(plan.Destinations),
	}
	if err := e.runRepo.Save(ctx, run); err != nil {
		if errors.Is(err, repository.ErrRunningRunExists) {
			runConflictsTotal.WithLabelValues("running_record_exists").Inc()
			return nil, NewBusinessError("CAMPAIGN_RUN_IN_PROGRESS", "Campaign already has a run in progress", ErrCampaignRunInProgress)
		}
		return nil, NewBusinessError("RUN_CREATE_FAILED", "Failed to open run", err)
	}
	runsStartedTotal.WithLabelValues(plan.Trigger.String()).Inc()

	rl := newRunLog(e.runRepo, run.ID, cred, e.logger)
	media := "none"
	if plan.Media != nil {
		media = plan.Media.FileID
	}
	rl.Printf(ctx, "run started trigger=%s campaign=%s customer=%s destinations=%d media=%s",
		plan.Trigger, plan.Campaign.UUID, plan.Customer.Code, len(plan.Destinations), media)

	results := e.deliver(ctx, plan, cred, rl)

	var lastFailure *deliveryResult
	for i := range results {
		r := &results[i]
		switch r.Outcome {
		case deliveryAccepted:
			run.Sent++
		default:
			run.Failed++
			if r.Outcome != deliverySkipped {
				lastFailure = r
			}
		}
	}

	if run.Failed == 0 && run.Sent == len(plan.Destinations) {
		run.Status = models.RunStatusSuccess
	} else {
		run.Status = models.RunStatusFailed
		if lastFailure != nil {
			kind := string(KindProviderRejection)
			if lastFailure.Outcome == deliveryUnavailable {
				kind = string(KindProvider)
			}
			msg := cred.Redact(lastFailure.ProviderMessage)
			if msg == "" && lastFailure.Err != nil {
				msg = cred.Redact(lastFailure.Err.Error())
			}
			run.ErrorKind = &kind
			run.ErrorMessage = &msg
		}
	}
	rl.Printf(ctx, "run finished status=%s sent=%d failed=%d", run.Status, run.Sent, run.Failed)

	if ref, err := e.storeArtifact(ctx, run, results); err != nil {
		rl.Printf(ctx, "result artifact not stored: %v", err)
	} else {
		run.ResultRef = &ref
	}

	run.FinishedAt = utils.UTCNowPtr()
	run.Log = rl.String()
	closed, err := e.runRepo.Finish(ctx, run)
	if err != nil {
		return run, NewBusinessError("RUN_FINISH_FAILED", "Failed to close run", err)
	}
	if !closed {
		e.logger.Printf("executor: run %s was closed by someone else", run.UUID)
	}

	runsFinishedTotal.WithLabelValues(plan.Trigger.String(), run.Status.String()).Inc()
	runDuration.WithLabelValues(plan.Trigger.String()).Observe(time.Since(start).Seconds())

	e.publishFinished(ctx, plan, run)
	return run, nil
}

// deliver sends with bounded concurrency, pacing launches by SendInterval.
// An unauthorized answer stops launching further sends.
func (e *Executor) deliver(ctx context.Context, plan *ExecutionPlan, cred *services.Credential, rl *runLog) []deliveryResult {
	results := make([]deliveryResult, len(plan.Destinations))
	var aborted atomic.Bool

	var g errgroup.Group
	g.SetLimit(e.execCfg.Workers)
	for i, d := range plan.Destinations {
		if aborted.Load() {
			results[i] = deliveryResult{Destination: d, Outcome: deliverySkipped}
			continue
		}
		if i > 0 && e.execCfg.SendInterval > 0 {
			time.Sleep(e.execCfg.SendInterval)
		}
		g.Go(func() error {
			if aborted.Load() {
				results[i] = deliveryResult{Destination: d, Outcome: deliverySkipped}
				return nil
			}
			res := e.sendOne(ctx, plan, cred, d)
			results[i] = res
			providerSendsTotal.WithLabelValues(res.Outcome).Inc()
			rl.Printf(ctx, "send destination=%s outcome=%s provider_status=%q provider_message=%q message_id=%s attempts=%d",
				d.PhoneNumber, res.Outcome, res.ProviderStatus, res.ProviderMessage, res.MessageID, res.Attempts)
			if res.Outcome == deliveryUnauthorized {
				aborted.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	skipped := 0
	for _, r := range results {
		if r.Outcome == deliverySkipped {
			skipped++
		}
	}
	if skipped > 0 {
		rl.Printf(ctx, "credential rejected, %d destinations skipped", skipped)
	}
	return results
}

func (e *Executor) sendOne(ctx context.Context, plan *ExecutionPlan, cred *services.Credential, d Destination) (out deliveryResult) {
	req := services.SendRequest{
		ServiceID:   plan.Customer.ServiceID,
		Destination: d.PhoneNumber,
		Message:     plan.Campaign.Render(d.Link),
	}
	if plan.Media != nil {
		req.FileID = plan.Media.FileID
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.providerCfg.InitialBackoff
	b.MaxInterval = e.providerCfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2

	attempts := 0
	res, err := backoff.Retry(ctx, func() (services.SendResult, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, e.providerCfg.RequestTimeout)
		defer cancel()

		sent, err := e.provider.Send(callCtx, cred, req)
		if err == nil {
			return sent, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &services.ProviderError{Retryable: true, Message: "request timed out", Err: err}
		}
		if services.IsRetryableProviderError(err) {
			return sent, err
		}
		return sent, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.providerCfg.MaxAttempts)),
		backoff.WithNotify(func(error, time.Duration) { providerRetriesTotal.Inc() }),
	)

	out = deliveryResult{Destination: d, Attempts: attempts}
	// provider text ends up in the log and the result workbook
	defer func() {
		out.ProviderStatus = cred.Redact(out.ProviderStatus)
		out.ProviderMessage = cred.Redact(out.ProviderMessage)
		out.MessageID = cred.Redact(out.MessageID)
	}()

	if err == nil {
		out.Outcome = deliveryAccepted
		out.ProviderStatus = res.ProviderStatus
		out.ProviderMessage = res.ProviderMessage
		out.MessageID = res.MessageID
		return out
	}

	out.Err = err
	out.ProviderMessage = err.Error()
	if pe, ok := services.AsProviderError(err); ok {
		out.ProviderStatus = pe.ProviderStatus
		if pe.Message != "" {
			out.ProviderMessage = pe.Message
		}
		switch {
		case pe.Unauthorized:
			out.Outcome = deliveryUnauthorized
		case pe.Retryable:
			out.Outcome = deliveryUnavailable
		default:
			out.Outcome = deliveryRejected
		}
		return out
	}
	out.Outcome = deliveryRejected
	return out
}

// storeArtifact writes one row per destination into an xlsx workbook
func (e *Executor) storeArtifact(ctx context.Context, run *models.RunRecord, results []deliveryResult) (string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Result"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return "", fmt.Errorf("failed to name result sheet: %w", err)
	}
	header := []any{"phone_number", "link", "outcome", "provider_status", "provider_message", "message_id", "attempts"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", fmt.Errorf("failed to write result header: %w", err)
	}
	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := []any{r.Destination.PhoneNumber, r.Destination.Link, r.Outcome, r.ProviderStatus, r.ProviderMessage, r.MessageID, r.Attempts}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("failed to write result row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to render result workbook: %w", err)
	}

	name := fmt.Sprintf("run-%s.xlsx", run.UUID)
	artifact := &models.RunArtifact{
		RunID:       run.ID,
		FileName:    name,
		ContentType: xlsxContentType,
		Content:     buf.Bytes(),
	}
	if err := e.artifactRepo.Save(ctx, artifact); err != nil {
		return "", err
	}
	return name, nil
}

func (e *Executor) publishFinished(ctx context.Context, plan *ExecutionPlan, run *models.RunRecord) {
	event := services.RunFinishedEvent{
		RunUUID:      run.UUID.String(),
		CampaignUUID: plan.Campaign.UUID.String(),
		Trigger:      run.Trigger.String(),
		Status:       run.Status.String(),
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Destinations: run.Destinations,
		Sent:         run.Sent,
		Failed:       run.Failed,
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.publisher.PublishRunFinished(pubCtx, event); err != nil {
		e.logger.Printf("executor: publish run.finished for %s failed: %v", run.UUID, err)
	}
}

// runLog appends timestamped lines to a running record. Every line passes
// through the credential redactor before it leaves the process.
type runLog struct {
	repo   repository.RunRecordRepository
	runID  uint
	cred   *services.Credential
	logger *log.Logger

	mu  sync.Mutex
	buf strings.Builder
}

func newRunLog(repo repository.RunRecordRepository, runID uint, cred *services.Credential, logger *log.Logger) *runLog {
	return &runLog{repo: repo, runID: runID, cred: cred, logger: logger}
}

func (l *runLog) Printf(ctx context.Context, format string, args ...any) {
	line := utils.UTCNow().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...) + "\n"
	line = l.cred.Redact(line)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.WriteString(line)
	if _, err := l.repo.AppendLog(ctx, l.runID, line); err != nil {
		l.logger.Printf("executor: append log for run %d failed: %v", l.runID, err)
	}
}

func (l *runLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}
