package businessflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("tehran local time is stored as UTC", func(t *testing.T) {
		h := newHarness()
		c1 := h.seedCampaign(10, "Hi %s")

		resp, err := h.runFlow.Schedule(ctx, &dto.ScheduleRunRequest{
			CampaignUUID: c1.UUID.String(),
			LocalRunAt:   "2024-03-20 13:30",
			Timezone:     "Asia/Tehran",
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC), resp.RunAt)
		assert.Equal(t, "2024-03-20 13:30", resp.RunAtDisplay)
		assert.Equal(t, models.ScheduledRunStatusScheduled.String(), resp.Status)
	})

	t.Run("display timezone is the default zone", func(t *testing.T) {
		h := newHarness()
		c1 := h.seedCampaign(1, "Hi %s")

		resp, err := h.runFlow.Schedule(ctx, &dto.ScheduleRunRequest{
			CampaignUUID: c1.UUID.String(),
			LocalRunAt:   "2024-03-20 13:30",
		})
		require.NoError(t, err)
		assert.Equal(t, "2024-03-20T10:00:00Z", resp.RunAt.Format(time.RFC3339))
	})

	t.Run("absolute instant with offset is normalized", func(t *testing.T) {
		h := newHarness()
		c1 := h.seedCampaign(1, "Hi %s")
		runAt := time.Date(2024, 3, 20, 13, 30, 0, 0, time.FixedZone("IRST", 3*3600+1800))

		resp, err := h.runFlow.Schedule(ctx, &dto.ScheduleRunRequest{CampaignUUID: c1.UUID.String(), RunAt: &runAt})
		require.NoError(t, err)
		assert.Equal(t, time.UTC, resp.RunAt.Location())

		stored, err := h.scheduled.ByUUID(ctx, resp.UUID)
		require.NoError(t, err)
		assert.True(t, stored.RunAt.Equal(time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)))
	})

	tests := []struct {
		name     string
		template string
		noAud    bool
		req      func(c *models.Campaign) *dto.ScheduleRunRequest
		wantErr  error
	}{
		{
			name:     "unknown campaign",
			template: "Hi %s",
			req: func(*models.Campaign) *dto.ScheduleRunRequest {
				return &dto.ScheduleRunRequest{CampaignUUID: "6f1c2a70-8f7e-4d7e-9a53-0c1f3f4b8c11", LocalRunAt: "2024-03-20 13:30"}
			},
			wantErr: ErrUnknownCampaign,
		},
		{
			name:     "missing placeholder",
			template: "Hi there",
			req: func(c *models.Campaign) *dto.ScheduleRunRequest {
				return &dto.ScheduleRunRequest{CampaignUUID: c.UUID.String(), LocalRunAt: "2024-03-20 13:30"}
			},
			wantErr: ErrTemplatePlaceholderMissing,
		},
		{
			name:     "missing audience",
			template: "Hi %s",
			noAud:    true,
			req: func(c *models.Campaign) *dto.ScheduleRunRequest {
				return &dto.ScheduleRunRequest{CampaignUUID: c.UUID.String(), LocalRunAt: "2024-03-20 13:30"}
			},
			wantErr: ErrAudienceSnapshotRequired,
		},
		{
			name:     "missing run_at",
			template: "Hi %s",
			req: func(c *models.Campaign) *dto.ScheduleRunRequest {
				return &dto.ScheduleRunRequest{CampaignUUID: c.UUID.String()}
			},
			wantErr: ErrRunAtRequired,
		},
		{
			name:     "unknown timezone",
			template: "Hi %s",
			req: func(c *models.Campaign) *dto.ScheduleRunRequest {
				return &dto.ScheduleRunRequest{CampaignUUID: c.UUID.String(), LocalRunAt: "2024-03-20 13:30", Timezone: "Mars/Olympus"}
			},
			wantErr: ErrInvalidTimezone,
		},
		{
			name:     "malformed local time",
			template: "Hi %s",
			req: func(c *models.Campaign) *dto.ScheduleRunRequest {
				return &dto.ScheduleRunRequest{CampaignUUID: c.UUID.String(), LocalRunAt: "20/03/2024 13:30"}
			},
			wantErr: ErrInvalidLocalRunAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			c := h.seedCampaign(3, tt.template)
			if tt.noAud {
				c.AudienceSnapshotID = nil
				require.NoError(t, h.campaigns.Save(ctx, c))
			}

			resp, err := h.runFlow.Schedule(ctx, tt.req(c))
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
			assert.Empty(t, h.scheduled.list(func(*models.ScheduledRun) bool { return true }, 0))
			assert.Empty(t, h.store.allRuns())
		})
	}
}

func TestAdvanceDueRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c := h.seedCampaign(2, "Hi %s")
	runAt := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	due := h.seedScheduledRun(c.ID, runAt, models.ScheduledRunStatusScheduled)
	future := h.seedScheduledRun(c.ID, runAt.Add(time.Hour), models.ScheduledRunStatusScheduled)

	t.Run("not yet due", func(t *testing.T) {
		n, err := h.runFlow.AdvanceDueRuns(ctx, runAt.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("due run waits for a credential", func(t *testing.T) {
		n, err := h.runFlow.AdvanceDueRuns(ctx, runAt.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(due.ID).Status)
		assert.Equal(t, models.ScheduledRunStatusScheduled, h.store.scheduledRun(future.ID).Status)
	})

	t.Run("repeated ticks are idempotent", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			n, err := h.runFlow.AdvanceDueRuns(ctx, runAt.Add(time.Second))
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		}
		assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(due.ID).Status)
	})

	t.Run("watchdog never executes", func(t *testing.T) {
		assert.Empty(t, h.store.allRuns())
		assert.Empty(t, h.provider.GetSentMessages())
	})

	t.Run("locked run is left for the next tick", func(t *testing.T) {
		release, ok, err := h.locker.TryLock(ctx, runLockKey(future.ID), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := h.runFlow.AdvanceDueRuns(ctx, runAt.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, models.ScheduledRunStatusScheduled, h.store.scheduledRun(future.ID).Status)

		release()
		n, err = h.runFlow.AdvanceDueRuns(ctx, runAt.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestExpireWaitingRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c := h.seedCampaign(1, "Hi %s")
	now := time.Date(2024, 3, 22, 12, 0, 0, 0, time.UTC)

	stale := h.seedScheduledRun(c.ID, now.Add(-25*time.Hour), models.ScheduledRunStatusWaitingToken)
	fresh := h.seedScheduledRun(c.ID, now.Add(-time.Hour), models.ScheduledRunStatusWaitingToken)

	n, err := h.runFlow.ExpireWaitingRuns(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := h.store.scheduledRun(stale.ID)
	assert.Equal(t, models.ScheduledRunStatusCanceled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, cancelReasonWaitExpired, *got.CancelReason)
	assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(fresh.ID).Status)

	t.Run("zero timeout waits forever", func(t *testing.T) {
		h.runFlow.schedulerCfg.TokenWaitTimeout = 0
		n, err := h.runFlow.ExpireWaitingRuns(ctx, now.Add(1000*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

// The full lifecycle of a scheduled campaign: schedule, watchdog tick, token.
func TestScheduledRunLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c1 := h.seedCampaign(10, "Hi %s")

	scheduled, err := h.runFlow.Schedule(ctx, &dto.ScheduleRunRequest{
		CampaignUUID: c1.UUID.String(),
		LocalRunAt:   "2024-03-20 13:30",
		Timezone:     "Asia/Tehran",
	})
	require.NoError(t, err)

	n, err := h.runFlow.AdvanceDueRuns(ctx, time.Date(2024, 3, 20, 10, 0, 1, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	run, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: scheduled.UUID, Token: "tok-secret-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess.String(), run.Status)
	assert.Equal(t, models.RunTriggerScheduled.String(), run.Trigger)
	assert.Equal(t, 10, run.Destinations)
	assert.Equal(t, 10, run.Sent)
	assert.Equal(t, 0, run.Failed)
	require.NotNil(t, run.ScheduledRunUUID)
	assert.Equal(t, scheduled.UUID, *run.ScheduledRunUUID)
	assert.True(t, run.HasResult)

	sr, err := h.runFlow.GetScheduledRun(ctx, scheduled.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledRunStatusSuccess.String(), sr.Status)
	require.NotNil(t, sr.LastRunUUID)
	assert.Equal(t, run.UUID, *sr.LastRunUUID)

	sent := h.provider.GetSentMessages()
	require.Len(t, sent, 10)
	for _, m := range sent {
		assert.True(t, strings.HasPrefix(m.Request.Message, "Hi https://l.example/"))
		assert.Equal(t, "svc-1", m.Request.ServiceID)
	}

	t.Run("second token on a finished run conflicts", func(t *testing.T) {
		_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: scheduled.UUID, Token: "tok-secret-1"})
		require.Error(t, err)
		assert.True(t, IsConflictError(err))
		assert.ErrorIs(t, err, ErrScheduledRunNotReady)
		assert.Len(t, h.store.allRuns(), 1)
	})
}

func TestSupplyToken_ConcurrentCallersExecuteOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c := h.seedCampaign(3, "Hi %s")
	sr := h.seedScheduledRun(c.ID, time.Now().Add(-time.Minute), models.ScheduledRunStatusWaitingToken)

	var sends atomic.Int32
	h.provider.SendFunc = func(context.Context, *services.Credential, services.SendRequest) (services.SendResult, error) {
		sends.Add(1)
		time.Sleep(5 * time.Millisecond)
		return services.SendResult{ProviderStatus: "OK", ProviderMessage: "accepted"}, nil
	}

	const callers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		others    atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "tok-secret-1"})
			switch {
			case err == nil:
				successes.Add(1)
			case IsConflictError(err):
				conflicts.Add(1)
			default:
				others.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(callers-1), conflicts.Load())
	assert.Equal(t, int32(0), others.Load())
	assert.Equal(t, int32(3), sends.Load())

	runs := h.store.allRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
	assert.Equal(t, models.ScheduledRunStatusSuccess, h.store.scheduledRun(sr.ID).Status)
}

func TestSupplyToken_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty credential", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(1, "Hi %s")
		sr := h.seedScheduledRun(c.ID, time.Now(), models.ScheduledRunStatusWaitingToken)

		_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "   "})
		assert.ErrorIs(t, err, ErrCredentialRequired)
		assert.True(t, IsValidationError(err))
		assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(sr.ID).Status)
	})

	t.Run("short credential", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(1, "Hi %s")
		sr := h.seedScheduledRun(c.ID, time.Now(), models.ScheduledRunStatusWaitingToken)

		_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "9"})
		assert.ErrorIs(t, err, ErrCredentialRequired)
		assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(sr.ID).Status)
	})

	t.Run("unknown scheduled run", func(t *testing.T) {
		h := newHarness()
		_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: "not-a-uuid", Token: "tok-secret"})
		assert.True(t, IsNotFoundError(err))
	})

	for _, status := range []models.ScheduledRunStatus{
		models.ScheduledRunStatusRunning,
		models.ScheduledRunStatusSuccess,
		models.ScheduledRunStatusFailed,
		models.ScheduledRunStatusCanceled,
	} {
		t.Run("status "+status.String(), func(t *testing.T) {
			h := newHarness()
			c := h.seedCampaign(1, "Hi %s")
			sr := h.seedScheduledRun(c.ID, time.Now(), status)

			_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "tok-secret"})
			assert.True(t, IsConflictError(err))
			assert.Equal(t, status, h.store.scheduledRun(sr.ID).Status)
			assert.Empty(t, h.store.allRuns())
		})
	}

	t.Run("pre-flight failure leaves the run pending", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(2, "no placeholder here")
		sr := h.seedScheduledRun(c.ID, time.Now(), models.ScheduledRunStatusWaitingToken)

		_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "tok-secret"})
		assert.ErrorIs(t, err, ErrTemplatePlaceholderMissing)
		assert.True(t, IsValidationError(err))
		assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(sr.ID).Status)
		assert.Empty(t, h.store.allRuns())
		assert.Empty(t, h.provider.GetSentMessages())
	})

	t.Run("campaign busy leaves the run pending", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(2, "Hi %s")
		sr := h.seedScheduledRun(c.ID, time.Now(), models.ScheduledRunStatusWaitingToken)

		release, ok, err := h.locker.TryLock(ctx, campaignLockKey(c.ID), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		defer release()

		_, err = h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "tok-secret"})
		assert.ErrorIs(t, err, ErrCampaignRunInProgress)
		assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(sr.ID).Status)
	})

	t.Run("running record in the registry reverts the run", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(2, "Hi %s")
		sr := h.seedScheduledRun(c.ID, time.Now(), models.ScheduledRunStatusWaitingToken)
		require.NoError(t, h.runs.Save(ctx, &models.RunRecord{CampaignID: c.ID, Trigger: models.RunTriggerManual, Status: models.RunStatusRunning}))

		_, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "tok-secret"})
		assert.ErrorIs(t, err, ErrCampaignRunInProgress)
		assert.Equal(t, models.ScheduledRunStatusWaitingToken, h.store.scheduledRun(sr.ID).Status)
		assert.Len(t, h.store.allRuns(), 1)
	})
}

func TestSupplyToken_FailedExecutionClosesScheduledRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c := h.seedCampaign(2, "Hi %s")
	sr := h.seedScheduledRun(c.ID, time.Now(), models.ScheduledRunStatusWaitingToken)

	h.provider.SendFunc = func(context.Context, *services.Credential, services.SendRequest) (services.SendResult, error) {
		return services.SendResult{}, &services.ProviderError{ProviderStatus: "INVALID_DESTINATION", Message: "destination is blocked"}
	}

	run, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: "tok-secret"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed.String(), run.Status)
	require.NotNil(t, run.ErrorKind)
	assert.Equal(t, string(KindProviderRejection), *run.ErrorKind)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "destination is blocked", *run.ErrorMessage)

	got := h.store.scheduledRun(sr.ID)
	assert.Equal(t, models.ScheduledRunStatusFailed, got.Status)
	require.NotNil(t, got.LastRunID)
	assert.Equal(t, h.store.allRuns()[0].ID, *got.LastRunID)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		from    models.ScheduledRunStatus
		allowed bool
	}{
		{models.ScheduledRunStatusScheduled, true},
		{models.ScheduledRunStatusWaitingToken, true},
		{models.ScheduledRunStatusRunning, false},
		{models.ScheduledRunStatusSuccess, false},
		{models.ScheduledRunStatusFailed, false},
		{models.ScheduledRunStatusCanceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			h := newHarness()
			c := h.seedCampaign(1, "Hi %s")
			sr := h.seedScheduledRun(c.ID, time.Now().Add(time.Hour), tt.from)

			resp, err := h.runFlow.Cancel(ctx, &dto.CancelScheduledRunRequest{ScheduledRunUUID: sr.UUID.String()})
			got := h.store.scheduledRun(sr.ID)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, models.ScheduledRunStatusCanceled.String(), resp.Status)
				assert.Equal(t, models.ScheduledRunStatusCanceled, got.Status)
				require.NotNil(t, got.CancelReason)
				assert.Equal(t, cancelReasonOperator, *got.CancelReason)
			} else {
				require.Error(t, err)
				assert.True(t, IsInvalidStateError(err))
				assert.ErrorIs(t, err, ErrCancelNotAllowed)
				assert.Equal(t, tt.from, got.Status)
			}
			assert.Empty(t, h.store.allRuns())
		})
	}

	t.Run("canceled run ignores the watchdog", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(1, "Hi %s")
		sr := h.seedScheduledRun(c.ID, time.Now().Add(-time.Hour), models.ScheduledRunStatusScheduled)

		_, err := h.runFlow.Cancel(ctx, &dto.CancelScheduledRunRequest{ScheduledRunUUID: sr.UUID.String()})
		require.NoError(t, err)

		n, err := h.runFlow.AdvanceDueRuns(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, models.ScheduledRunStatusCanceled, h.store.scheduledRun(sr.ID).Status)
	})
}

func TestRunNow(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to every audience row", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(5, "Offer %s today")

		run, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		require.NoError(t, err)
		assert.Equal(t, models.RunTriggerManual.String(), run.Trigger)
		assert.Equal(t, models.RunStatusSuccess.String(), run.Status)
		assert.Equal(t, 5, run.Sent)
		assert.Nil(t, run.ScheduledRunUUID)
		assert.Len(t, h.provider.GetSentMessages(), 5)
	})

	t.Run("missing placeholder creates no record", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(5, "Offer today")

		_, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		assert.ErrorIs(t, err, ErrTemplatePlaceholderMissing)
		assert.True(t, IsValidationError(err))
		assert.Empty(t, h.store.allRuns())
		assert.Empty(t, h.provider.GetSentMessages())
	})

	t.Run("media of another customer is rejected before sending", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(1, "Hi %s")
		other := &models.Customer{Code: "other", Name: "Other", ServiceID: "svc-2"}
		require.NoError(t, h.customers.Save(ctx, other))
		media := &models.CustomerMedia{CustomerID: other.ID, FileID: "f-1", FileName: "a.png", FileType: models.MediaFileTypeImage}
		require.NoError(t, h.media.Save(ctx, media))
		c.SelectedMediaID = &media.ID
		require.NoError(t, h.campaigns.Save(ctx, c))

		_, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		assert.ErrorIs(t, err, ErrMediaOwnershipMismatch)
		assert.Empty(t, h.store.allRuns())
	})

	t.Run("selected media is attached to every send", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(2, "Hi %s")
		media := &models.CustomerMedia{CustomerID: c.CustomerID, FileID: "file-42", FileName: "a.png", FileType: models.MediaFileTypeImage}
		require.NoError(t, h.media.Save(ctx, media))
		c.SelectedMediaID = &media.ID
		require.NoError(t, h.campaigns.Save(ctx, c))

		_, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		require.NoError(t, err)
		for _, m := range h.provider.GetSentMessages() {
			assert.Equal(t, "file-42", m.Request.FileID)
		}
	})

	t.Run("unknown campaign", func(t *testing.T) {
		h := newHarness()
		_, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: "6f1c2a70-8f7e-4d7e-9a53-0c1f3f4b8c11", Token: "tok-secret"})
		assert.ErrorIs(t, err, ErrUnknownCampaign)
		assert.True(t, IsValidationError(err))
	})

	t.Run("retryable failures are retried", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(1, "Hi %s")
		var calls atomic.Int32
		h.provider.SendFunc = func(context.Context, *services.Credential, services.SendRequest) (services.SendResult, error) {
			if calls.Add(1) == 1 {
				return services.SendResult{}, &services.ProviderError{Retryable: true, Message: "gateway timeout"}
			}
			return services.SendResult{ProviderStatus: "OK"}, nil
		}

		run, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSuccess.String(), run.Status)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("exhausted retries fail the run as a provider error", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(1, "Hi %s")
		var calls atomic.Int32
		h.provider.SendFunc = func(context.Context, *services.Credential, services.SendRequest) (services.SendResult, error) {
			calls.Add(1)
			return services.SendResult{}, &services.ProviderError{Retryable: true, Message: "connection refused"}
		}

		run, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusFailed.String(), run.Status)
		require.NotNil(t, run.ErrorKind)
		assert.Equal(t, string(KindProvider), *run.ErrorKind)
		assert.Equal(t, int32(3), calls.Load())

		stored := h.store.allRuns()[0]
		assert.Contains(t, stored.Log, "connection refused")
	})

	t.Run("rejected credential skips the remaining destinations", func(t *testing.T) {
		h := newHarness()
		h.executor.execCfg.Workers = 1
		c := h.seedCampaign(4, "Hi %s")
		h.provider.SendFunc = func(context.Context, *services.Credential, services.SendRequest) (services.SendResult, error) {
			return services.SendResult{}, &services.ProviderError{Unauthorized: true, StatusCode: 401, Message: "token expired"}
		}

		run, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusFailed.String(), run.Status)
		assert.Equal(t, 0, run.Sent)
		assert.Equal(t, 4, run.Failed)
		assert.Contains(t, h.store.allRuns()[0].Log, "destinations skipped")
	})
}

func TestSendTest(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		campaignTest string
		requestTest  string
		want         string
	}{
		{name: "request number wins", campaignTest: "989121111111", requestTest: "+98 912 222 2222", want: "989122222222"},
		{name: "campaign number", campaignTest: "989121111111", want: "989121111111"},
		{name: "default number", want: utils.DefaultTestNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			c := h.seedCampaign(5, "Hi %s")
			c.TestNumber = tt.campaignTest
			require.NoError(t, h.campaigns.Save(ctx, c))

			run, err := h.runFlow.SendTest(ctx, &dto.SendTestRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret", TestNumber: tt.requestTest})
			require.NoError(t, err)
			assert.Equal(t, models.RunTriggerTest.String(), run.Trigger)
			assert.Equal(t, 1, run.Destinations)

			sent := h.provider.GetSentMessages()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.want, sent[0].Request.Destination)
			assert.Equal(t, "Hi https://l.example/a", sent[0].Request.Message)
		})
	}

	t.Run("placeholder is required for test sends too", func(t *testing.T) {
		h := newHarness()
		c := h.seedCampaign(1, "Hi")
		_, err := h.runFlow.SendTest(ctx, &dto.SendTestRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		assert.ErrorIs(t, err, ErrTemplatePlaceholderMissing)
		assert.Empty(t, h.store.allRuns())
	})
}

func TestSendTest_ConflictsWithRunNowInFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c1 := h.seedCampaign(3, "Hi %s")

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	h.provider.SendFunc = func(context.Context, *services.Credential, services.SendRequest) (services.SendResult, error) {
		once.Do(func() { close(entered) })
		<-unblock
		return services.SendResult{ProviderStatus: "OK"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c1.UUID.String(), Token: "tok-secret-1"})
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("runNow never reached the provider")
	}

	_, err := h.runFlow.SendTest(ctx, &dto.SendTestRequest{CampaignUUID: c1.UUID.String(), Token: "tok-secret-1", TestNumber: "989024004940"})
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
	assert.ErrorIs(t, err, ErrCampaignRunInProgress)

	running := 0
	for _, r := range h.store.allRuns() {
		if r.Status == models.RunStatusRunning {
			running++
		}
	}
	assert.Equal(t, 1, running)

	close(unblock)
	require.NoError(t, <-done)
	runs := h.store.allRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
}

func TestCredentialIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	const secret = "sk-live-7fa9c0ffee"

	h := newHarness()
	c := h.seedCampaign(3, "Hi %s")
	sr := h.seedScheduledRun(c.ID, time.Now(), models.ScheduledRunStatusWaitingToken)

	var calls atomic.Int32
	h.provider.SendFunc = func(_ context.Context, cred *services.Credential, _ services.SendRequest) (services.SendResult, error) {
		if calls.Add(1) == 1 {
			// a provider echoing the credential back must not leak it
			return services.SendResult{}, &services.ProviderError{ProviderStatus: "DENIED", Message: "bad key " + cred.Reveal()}
		}
		return services.SendResult{ProviderStatus: "OK", ProviderMessage: "accepted for " + cred.Reveal()}, nil
	}

	run, err := h.runFlow.SupplyToken(ctx, &dto.SupplyTokenRequest{ScheduledRunUUID: sr.UUID.String(), Token: secret})
	require.NoError(t, err)

	_, err = h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: secret})
	require.NoError(t, err)
	_, err = h.runFlow.SendTest(ctx, &dto.SendTestRequest{CampaignUUID: c.UUID.String(), Token: secret})
	require.NoError(t, err)

	for _, r := range h.store.allRuns() {
		assert.NotContains(t, r.Log, secret)
		if r.ErrorMessage != nil {
			assert.NotContains(t, *r.ErrorMessage, secret)
		}
		if r.ResultRef != nil {
			assert.NotContains(t, *r.ResultRef, secret)
		}

		artifact, err := h.artifacts.ByRunID(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, artifact)
		assertWorkbookClean(t, artifact.Content, secret)
	}
	assert.NotContains(t, fmt.Sprintf("%+v", h.store.scheduledRun(sr.ID)), secret)
	assert.NotContains(t, h.logs.String(), secret)
	assert.Contains(t, h.store.allRuns()[0].Log, "[REDACTED]")

	logResp, err := h.registry.GetLog(ctx, run.UUID)
	require.NoError(t, err)
	assert.NotContains(t, logResp.Log, secret)
}

func assertWorkbookClean(t *testing.T, content []byte, secret string) {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Result")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		for _, cell := range row {
			assert.NotContains(t, cell, secret)
		}
	}
}

func TestFailStaleRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c := h.seedCampaign(1, "Hi %s")
	now := time.Now().UTC()

	sr := h.seedScheduledRun(c.ID, now.Add(-8*time.Hour), models.ScheduledRunStatusRunning)
	stale := &models.RunRecord{
		CampaignID:     c.ID,
		ScheduledRunID: &sr.ID,
		Trigger:        models.RunTriggerScheduled,
		Status:         models.RunStatusRunning,
		StartedAt:      now.Add(-7 * time.Hour),
	}
	require.NoError(t, h.runs.Save(ctx, stale))

	n, err := h.runFlow.FailStaleRuns(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.runs.ByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.Contains(t, got.Log, "abandoned")

	gotSR := h.store.scheduledRun(sr.ID)
	assert.Equal(t, models.ScheduledRunStatusFailed, gotSR.Status)
	require.NotNil(t, gotSR.LastRunID)
	assert.Equal(t, stale.ID, *gotSR.LastRunID)

	t.Run("campaign can run again", func(t *testing.T) {
		run, err := h.runFlow.RunNow(ctx, &dto.RunNowRequest{CampaignUUID: c.UUID.String(), Token: "tok-secret"})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSuccess.String(), run.Status)
	})

	t.Run("second pass finds nothing", func(t *testing.T) {
		n, err := h.runFlow.FailStaleRuns(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{NewBusinessError("X", "x", ErrUnknownCampaign), KindValidation},
		{NewBusinessError("X", "x", ErrScheduledRunNotReady), KindConflict},
		{NewBusinessError("X", "x", ErrCancelNotAllowed), KindInvalidState},
		{NewBusinessError("X", "x", ErrRunNotFound), KindNotFound},
		{NewBusinessError("X", "x", ErrProviderUnavailable), KindProvider},
		{NewBusinessError("X", "x", ErrProviderRejected), KindProviderRejection},
		{NewBusinessError("X", "x", errors.New("disk full")), KindInternal},
		{errors.Join(ErrInvalidTimezone, errors.New("unknown time zone")), KindValidation},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}
