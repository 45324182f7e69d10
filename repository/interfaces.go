// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Amaterasu/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrRunningRunExists is returned when a campaign already has a running RunRecord
var ErrRunningRunExists = errors.New("campaign already has a running run")

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CustomerRepository defines operations for customers
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Customer, error)
	ByCode(ctx context.Context, code string) (*models.Customer, error)
}

// CustomerMediaRepository defines operations for provider media references
type CustomerMediaRepository interface {
	Repository[models.CustomerMedia, models.CustomerMediaFilter]
	ByUUID(ctx context.Context, uuid string) (*models.CustomerMedia, error)
}

// AudienceRepository stores immutable snapshots and their rows
type AudienceRepository interface {
	Repository[models.AudienceSnapshot, any]
	ByUUID(ctx context.Context, uuid string) (*models.AudienceSnapshot, error)
	SaveWithRows(ctx context.Context, snapshot *models.AudienceSnapshot, rows []*models.AudienceRow) error
	Rows(ctx context.Context, snapshotID uint, limit int) ([]*models.AudienceRow, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	// UpdateSelectedMedia changes the media reference only while the campaign has no runs.
	UpdateSelectedMedia(ctx context.Context, campaignID uint, mediaID *uint) (bool, error)
}

// ScheduledRunRepository defines the lifecycle operations of scheduled runs
type ScheduledRunRepository interface {
	Repository[models.ScheduledRun, models.ScheduledRunFilter]
	ByUUID(ctx context.Context, uuid string) (*models.ScheduledRun, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledRun, error)
	ListWaitingSince(ctx context.Context, runAtBefore time.Time, limit int) ([]*models.ScheduledRun, error)
	// CompareAndSwapStatus moves the run to `to` only if its status is one of `from`.
	CompareAndSwapStatus(ctx context.Context, id uint, from []models.ScheduledRunStatus, to models.ScheduledRunStatus, extra map[string]any) (bool, error)
	ListViews(ctx context.Context, limit int) ([]*models.ScheduledRunView, error)
}

// RunRecordRepository is the durable registry of executions
type RunRecordRepository interface {
	Repository[models.RunRecord, models.RunRecordFilter]
	ByUUID(ctx context.Context, uuid string) (*models.RunRecord, error)
	// AppendLog appends chunk only while the run is running.
	AppendLog(ctx context.Context, id uint, chunk string) (bool, error)
	// Finish closes a running record; a closed record is never touched again.
	Finish(ctx context.Context, run *models.RunRecord) (bool, error)
	ListViews(ctx context.Context, filter models.RunRecordFilter, limit int) ([]*models.RunRecordView, error)
}

// RunArtifactRepository stores result blobs keyed by run
type RunArtifactRepository interface {
	Save(ctx context.Context, artifact *models.RunArtifact) error
	ByRunID(ctx context.Context, runID uint) (*models.RunArtifact, error)
}
