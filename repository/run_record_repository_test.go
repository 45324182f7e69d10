package repository_test

import (
	"context"
	"testing"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecordRepository_OneRunningRunPerCampaign(t *testing.T) {
	testDB, fixtures := setupDB(t)
	repo := repository.NewRunRecordRepository(testDB.DB)
	ctx := context.Background()
	campaign := createCampaign(t, fixtures)
	other := createCampaign(t, fixtures)

	first := &models.RunRecord{CampaignID: campaign.ID, Trigger: models.RunTriggerManual}
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, models.RunStatusRunning, first.Status)
	assert.False(t, first.StartedAt.IsZero())

	second := &models.RunRecord{CampaignID: campaign.ID, Trigger: models.RunTriggerTest}
	assert.ErrorIs(t, repo.Save(ctx, second), repository.ErrRunningRunExists)

	require.NoError(t, repo.Save(ctx, &models.RunRecord{CampaignID: other.ID, Trigger: models.RunTriggerTest}),
		"other campaigns are unaffected")

	first.Status = models.RunStatusSuccess
	ok, err := repo.Finish(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	third := &models.RunRecord{CampaignID: campaign.ID, Trigger: models.RunTriggerTest}
	require.NoError(t, repo.Save(ctx, third), "finished runs release the campaign")
}

func TestRunRecordRepository_LogAndFinish(t *testing.T) {
	testDB, fixtures := setupDB(t)
	repo := repository.NewRunRecordRepository(testDB.DB)
	ctx := context.Background()
	campaign := createCampaign(t, fixtures)

	run, err := fixtures.CreateTestRun(campaign.ID, models.RunTriggerManual)
	require.NoError(t, err)

	ok, err := repo.AppendLog(ctx, run.ID, "line one\n")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.AppendLog(ctx, run.ID, "line two\n")
	require.NoError(t, err)
	require.True(t, ok)

	kind := "provider"
	msg := "2 sends failed"
	ref := "run-" + run.UUID.String() + ".xlsx"
	run.Status = models.RunStatusFailed
	run.Destinations = 5
	run.Sent = 3
	run.Failed = 2
	run.ErrorKind = &kind
	run.ErrorMessage = &msg
	run.ResultRef = &ref
	ok, err = repo.Finish(ctx, run)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, run.FinishedAt)

	ok, err = repo.Finish(ctx, run)
	require.NoError(t, err)
	assert.False(t, ok, "a finished run cannot be finished twice")

	ok, err = repo.AppendLog(ctx, run.ID, "too late\n")
	require.NoError(t, err)
	assert.False(t, ok, "finished runs are immutable")

	got, err := repo.ByUUID(ctx, run.UUID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "line one\nline two\n", got.Log)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, 3, got.Sent)
	assert.Equal(t, 2, got.Failed)
	assert.True(t, got.IsFinished())
	require.NotNil(t, got.ResultRef)
	assert.Equal(t, ref, *got.ResultRef)
}

func TestRunRecordRepository_ListViews(t *testing.T) {
	testDB, fixtures := setupDB(t)
	repo := repository.NewRunRecordRepository(testDB.DB)
	ctx := context.Background()
	first := createCampaign(t, fixtures)
	second := createCampaign(t, fixtures)

	done, err := fixtures.CreateTestRun(first.ID, models.RunTriggerTest)
	require.NoError(t, err)
	done.Status = models.RunStatusSuccess
	ok, err := repo.Finish(ctx, done)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = fixtures.CreateTestRun(first.ID, models.RunTriggerManual)
	require.NoError(t, err)
	_, err = fixtures.CreateTestRun(second.ID, models.RunTriggerManual)
	require.NoError(t, err)

	all, err := repo.ListViews(ctx, models.RunRecordFilter{}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	running := models.RunStatusRunning
	views, err := repo.ListViews(ctx, models.RunRecordFilter{Status: &running}, 0)
	require.NoError(t, err)
	assert.Len(t, views, 2)

	views, err = repo.ListViews(ctx, models.RunRecordFilter{CustomerID: &first.CustomerID}, 0)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, first.Name, v.CampaignName)
		assert.Equal(t, first.UUID, v.CampaignUUID)
		assert.False(t, v.HasResult)
	}

	query := second.Name
	views, err = repo.ListViews(ctx, models.RunRecordFilter{Query: &query}, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, second.ID, views[0].CampaignID)

	wildcard := "%"
	views, err = repo.ListViews(ctx, models.RunRecordFilter{Query: &wildcard}, 0)
	require.NoError(t, err)
	assert.Empty(t, views, "a typed % matches literally")

	underscore := "Campaign_"
	views, err = repo.ListViews(ctx, models.RunRecordFilter{Query: &underscore}, 0)
	require.NoError(t, err)
	assert.Empty(t, views, "a typed _ matches literally")

	limited, err := repo.ListViews(ctx, models.RunRecordFilter{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
