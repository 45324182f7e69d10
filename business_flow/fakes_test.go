package businessflow

import (
	"bytes"
	"context"
	"log"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the database. Reads hand out copies
// so concurrent flows never share a row.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	customers map[uint]*models.Customer
	media     map[uint]*models.CustomerMedia
	campaigns map[uint]*models.Campaign
	snapshots map[uint]*models.AudienceSnapshot
	rows      map[uint][]*models.AudienceRow
	scheduled map[uint]*models.ScheduledRun
	runs      map[uint]*models.RunRecord
	artifacts map[uint]*models.RunArtifact
}

func newMemStore() *memStore {
	return &memStore{
		customers: map[uint]*models.Customer{},
		media:     map[uint]*models.CustomerMedia{},
		campaigns: map[uint]*models.Campaign{},
		snapshots: map[uint]*models.AudienceSnapshot{},
		rows:      map[uint][]*models.AudienceRow{},
		scheduled: map[uint]*models.ScheduledRun{},
		runs:      map[uint]*models.RunRecord{},
		artifacts: map[uint]*models.RunArtifact{},
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func cp[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (s *memStore) allRuns() []*models.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, cp(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) scheduledRun(id uint) *models.ScheduledRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cp(s.scheduled[id])
}

type fakeCustomerRepo struct {
	repository.CustomerRepository
	s *memStore
}

func (r *fakeCustomerRepo) ByID(_ context.Context, id uint) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cp(r.s.customers[id]), nil
}

func (r *fakeCustomerRepo) ByUUID(_ context.Context, id string) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.customers {
		if c.UUID.String() == id {
			return cp(c), nil
		}
	}
	return nil, nil
}

func (r *fakeCustomerRepo) ByCode(_ context.Context, code string) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.customers {
		if c.Code == code {
			return cp(c), nil
		}
	}
	return nil, nil
}

func (r *fakeCustomerRepo) Save(_ context.Context, c *models.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.s.id()
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	c.CreatedAt = utils.UTCNow()
	r.s.customers[c.ID] = cp(c)
	return nil
}

type fakeMediaRepo struct {
	repository.CustomerMediaRepository
	s *memStore
}

func (r *fakeMediaRepo) ByID(_ context.Context, id uint) (*models.CustomerMedia, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cp(r.s.media[id]), nil
}

func (r *fakeMediaRepo) ByUUID(_ context.Context, id string) (*models.CustomerMedia, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.media {
		if m.UUID.String() == id {
			return cp(m), nil
		}
	}
	return nil, nil
}

func (r *fakeMediaRepo) Save(_ context.Context, m *models.CustomerMedia) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.s.id()
	}
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	r.s.media[m.ID] = cp(m)
	return nil
}

func (r *fakeMediaRepo) ByFilter(_ context.Context, filter models.CustomerMediaFilter, _ string, _, _ int) ([]*models.CustomerMedia, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.CustomerMedia
	for _, m := range r.s.media {
		if filter.CustomerID != nil && m.CustomerID != *filter.CustomerID {
			continue
		}
		out = append(out, cp(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type fakeAudienceRepo struct {
	repository.AudienceRepository
	s *memStore
}

func (r *fakeAudienceRepo) ByID(_ context.Context, id uint) (*models.AudienceSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cp(r.s.snapshots[id]), nil
}

func (r *fakeAudienceRepo) ByUUID(_ context.Context, id string) (*models.AudienceSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.snapshots {
		if a.UUID.String() == id {
			return cp(a), nil
		}
	}
	return nil, nil
}

func (r *fakeAudienceRepo) SaveWithRows(_ context.Context, snapshot *models.AudienceSnapshot, rows []*models.AudienceRow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snapshot.ID = r.s.id()
	snapshot.RowCount = len(rows)
	if snapshot.UUID == uuid.Nil {
		snapshot.UUID = uuid.New()
	}
	r.s.snapshots[snapshot.ID] = cp(snapshot)
	stored := make([]*models.AudienceRow, 0, len(rows))
	for _, row := range rows {
		row.SnapshotID = snapshot.ID
		stored = append(stored, cp(row))
	}
	r.s.rows[snapshot.ID] = stored
	return nil
}

func (r *fakeAudienceRepo) Rows(_ context.Context, snapshotID uint, limit int) ([]*models.AudienceRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := r.s.rows[snapshotID]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]*models.AudienceRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, cp(row))
	}
	return out, nil
}

type fakeCampaignRepo struct {
	repository.CampaignRepository
	s *memStore
}

func (r *fakeCampaignRepo) ByID(_ context.Context, id uint) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cp(r.s.campaigns[id]), nil
}

func (r *fakeCampaignRepo) ByUUID(_ context.Context, id string) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.campaigns {
		if c.UUID.String() == id {
			return cp(c), nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) Save(_ context.Context, c *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.s.id()
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	r.s.campaigns[c.ID] = cp(c)
	return nil
}

func (r *fakeCampaignRepo) UpdateSelectedMedia(_ context.Context, campaignID uint, mediaID *uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, run := range r.s.runs {
		if run.CampaignID == campaignID {
			return false, nil
		}
	}
	c, ok := r.s.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	c.SelectedMediaID = mediaID
	return true, nil
}

type fakeScheduledRunRepo struct {
	repository.ScheduledRunRepository
	s *memStore
}

func (r *fakeScheduledRunRepo) ByID(_ context.Context, id uint) (*models.ScheduledRun, error) {
	return r.s.scheduledRun(id), nil
}

func (r *fakeScheduledRunRepo) ByUUID(_ context.Context, id string) (*models.ScheduledRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sr := range r.s.scheduled {
		if sr.UUID.String() == id {
			return cp(sr), nil
		}
	}
	return nil, nil
}

func (r *fakeScheduledRunRepo) Save(_ context.Context, sr *models.ScheduledRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sr.ID == 0 {
		sr.ID = r.s.id()
	}
	if sr.UUID == uuid.Nil {
		sr.UUID = uuid.New()
	}
	if sr.Status == "" {
		sr.Status = models.ScheduledRunStatusScheduled
	}
	sr.RunAt = sr.RunAt.UTC()
	now := utils.UTCNow()
	sr.CreatedAt, sr.UpdatedAt = now, now
	r.s.scheduled[sr.ID] = cp(sr)
	return nil
}

func (r *fakeScheduledRunRepo) list(match func(*models.ScheduledRun) bool, limit int) []*models.ScheduledRun {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ScheduledRun
	for _, sr := range r.s.scheduled {
		if match(sr) {
			out = append(out, cp(sr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *fakeScheduledRunRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*models.ScheduledRun, error) {
	return r.list(func(sr *models.ScheduledRun) bool {
		return sr.Status == models.ScheduledRunStatusScheduled && !sr.RunAt.After(now)
	}, limit), nil
}

func (r *fakeScheduledRunRepo) ListWaitingSince(_ context.Context, before time.Time, limit int) ([]*models.ScheduledRun, error) {
	return r.list(func(sr *models.ScheduledRun) bool {
		return sr.Status == models.ScheduledRunStatusWaitingToken && sr.RunAt.Before(before)
	}, limit), nil
}

func (r *fakeScheduledRunRepo) CompareAndSwapStatus(_ context.Context, id uint, from []models.ScheduledRunStatus, to models.ScheduledRunStatus, extra map[string]any) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sr, ok := r.s.scheduled[id]
	if !ok || !slices.Contains(from, sr.Status) {
		return false, nil
	}
	sr.Status = to
	sr.UpdatedAt = utils.UTCNow()
	if v, ok := extra["cancel_reason"].(string); ok {
		sr.CancelReason = &v
	}
	if v, ok := extra["last_run_id"].(uint); ok {
		sr.LastRunID = &v
	}
	return true, nil
}

type fakeRunRepo struct {
	repository.RunRecordRepository
	s *memStore
}

func (r *fakeRunRepo) ByID(_ context.Context, id uint) (*models.RunRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cp(r.s.runs[id]), nil
}

func (r *fakeRunRepo) ByUUID(_ context.Context, id string) (*models.RunRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, run := range r.s.runs {
		if run.UUID.String() == id {
			return cp(run), nil
		}
	}
	return nil, nil
}

// Save enforces the one-running-run-per-campaign index
func (r *fakeRunRepo) Save(_ context.Context, run *models.RunRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.runs {
		if other.CampaignID == run.CampaignID && other.Status == models.RunStatusRunning && other.ID != run.ID {
			return repository.ErrRunningRunExists
		}
	}
	if run.ID == 0 {
		run.ID = r.s.id()
	}
	if run.UUID == uuid.Nil {
		run.UUID = uuid.New()
	}
	r.s.runs[run.ID] = cp(run)
	return nil
}

func (r *fakeRunRepo) AppendLog(_ context.Context, id uint, chunk string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run, ok := r.s.runs[id]
	if !ok || run.Status != models.RunStatusRunning {
		return false, nil
	}
	run.Log += chunk
	return true, nil
}

func (r *fakeRunRepo) Finish(_ context.Context, run *models.RunRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.runs[run.ID]
	if !ok || stored.Status != models.RunStatusRunning {
		return false, nil
	}
	stored.Status = run.Status
	stored.FinishedAt = run.FinishedAt
	stored.ResultRef = run.ResultRef
	stored.Destinations = run.Destinations
	stored.Sent = run.Sent
	stored.Failed = run.Failed
	stored.ErrorKind = run.ErrorKind
	stored.ErrorMessage = run.ErrorMessage
	return true, nil
}

func (r *fakeRunRepo) ByFilter(_ context.Context, filter models.RunRecordFilter, _ string, limit, _ int) ([]*models.RunRecord, error) {
	var out []*models.RunRecord
	for _, run := range r.s.allRuns() {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.StartedBefore != nil && !run.StartedAt.Before(*filter.StartedBefore) {
			continue
		}
		if filter.CampaignID != nil && run.CampaignID != *filter.CampaignID {
			continue
		}
		out = append(out, run)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRunRepo) ListViews(_ context.Context, filter models.RunRecordFilter, _ int) ([]*models.RunRecordView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.RunRecordView
	for _, run := range r.s.runs {
		if filter.ID != nil && run.ID != *filter.ID {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		c := r.s.campaigns[run.CampaignID]
		v := &models.RunRecordView{RunRecord: *run, HasLog: run.Log != ""}
		if c != nil {
			v.CampaignUUID = c.UUID
			v.CampaignName = c.Name
			if cu := r.s.customers[c.CustomerID]; cu != nil {
				v.CustomerUUID = cu.UUID
				v.CustomerName = cu.Name
			}
		}
		_, v.HasResult = r.s.artifacts[run.ID]
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

type fakeArtifactRepo struct {
	s *memStore
}

func (r *fakeArtifactRepo) Save(_ context.Context, a *models.RunArtifact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	r.s.artifacts[a.RunID] = cp(a)
	return nil
}

func (r *fakeArtifactRepo) ByRunID(_ context.Context, runID uint) (*models.RunArtifact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cp(r.s.artifacts[runID]), nil
}

// syncBuffer collects logger output from concurrent goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// harness wires the flows against memStore
type harness struct {
	store     *memStore
	provider  *services.MockMessagingProvider
	locker    *MemoryLocker
	logs      *syncBuffer
	executor  *Executor
	runFlow   *CampaignRunFlowImpl
	registry  RunRegistryFlow
	customers *fakeCustomerRepo
	media     *fakeMediaRepo
	audiences *fakeAudienceRepo
	campaigns *fakeCampaignRepo
	scheduled *fakeScheduledRunRepo
	runs      *fakeRunRepo
	artifacts *fakeArtifactRepo
}

func newHarness() *harness {
	s := newMemStore()
	h := &harness{
		store:     s,
		provider:  services.NewMockMessagingProvider(),
		locker:    NewMemoryLocker(),
		logs:      &syncBuffer{},
		customers: &fakeCustomerRepo{s: s},
		media:     &fakeMediaRepo{s: s},
		audiences: &fakeAudienceRepo{s: s},
		campaigns: &fakeCampaignRepo{s: s},
		scheduled: &fakeScheduledRunRepo{s: s},
		runs:      &fakeRunRepo{s: s},
		artifacts: &fakeArtifactRepo{s: s},
	}
	logger := log.New(h.logs, "", 0)

	h.executor = NewExecutor(h.runs, h.artifacts, h.audiences, h.customers, h.media, h.provider, nil,
		config.ExecutorConfig{Workers: 4, CampaignLockTTL: time.Hour},
		config.ProviderConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, RequestTimeout: time.Second},
		logger)
	h.runFlow = NewCampaignRunFlow(h.campaigns, h.scheduled, h.runs, h.executor, h.locker,
		config.SchedulerConfig{BatchSize: 100, TokenWaitTimeout: 24 * time.Hour, StaleRunAfter: 6 * time.Hour, RunLockWait: 2 * time.Second},
		config.ExecutorConfig{CampaignLockTTL: time.Hour},
		config.DisplayConfig{Timezone: "Asia/Tehran"},
		logger).(*CampaignRunFlowImpl)
	h.registry = NewRunRegistryFlow(h.runs, h.artifacts, h.customers, h.scheduled)
	return h
}

// seedCampaign creates a customer, an audience of n rows and a campaign using them
func (h *harness) seedCampaign(n int, template string) *models.Campaign {
	ctx := context.Background()
	customer := &models.Customer{Code: "acme-" + uuid.NewString()[:6], Name: "Acme", ServiceID: "svc-1"}
	_ = h.customers.Save(ctx, customer)

	snapshot := &models.AudienceSnapshot{OriginalFilename: "a.csv", RowCount: n}
	rows := make([]*models.AudienceRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, &models.AudienceRow{
			Position:    i,
			PhoneNumber: "9891200000" + string(rune('0'+i%10)),
			Link:        "https://l.example/" + string(rune('a'+i%26)),
		})
	}
	_ = h.audiences.SaveWithRows(ctx, snapshot, rows)

	campaign := &models.Campaign{
		CustomerID:         customer.ID,
		Name:               "Spring",
		AudienceSnapshotID: &snapshot.ID,
		MessageTemplate:    template,
	}
	_ = h.campaigns.Save(ctx, campaign)
	return campaign
}

func (h *harness) seedScheduledRun(campaignID uint, runAt time.Time, status models.ScheduledRunStatus) *models.ScheduledRun {
	sr := &models.ScheduledRun{CampaignID: campaignID, RunAt: runAt, Status: status}
	_ = h.scheduled.Save(context.Background(), sr)
	return sr
}
