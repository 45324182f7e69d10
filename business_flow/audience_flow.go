package businessflow

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
)

// AudienceFlow turns uploaded recipient files into immutable snapshots
type AudienceFlow interface {
	UploadAudience(ctx context.Context, req *dto.UploadAudienceRequest) (*dto.UploadAudienceResponse, error)
	GetAudience(ctx context.Context, snapshotUUID string) (*dto.AudienceSnapshotResponse, error)
}

// AudienceFlowImpl implements AudienceFlow
type AudienceFlowImpl struct {
	audienceRepo repository.AudienceRepository
	importer     *services.AudienceImporter
}

func NewAudienceFlow(audienceRepo repository.AudienceRepository, importer *services.AudienceImporter) AudienceFlow {
	return &AudienceFlowImpl{audienceRepo: audienceRepo, importer: importer}
}

func (f *AudienceFlowImpl) UploadAudience(ctx context.Context, req *dto.UploadAudienceRequest) (*dto.UploadAudienceResponse, error) {
	parsed, err := f.importer.Parse(req.FileName, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAudienceEmpty):
			return nil, NewBusinessError("AUDIENCE_EMPTY", "Audience file has no usable rows", errors.Join(ErrAudienceEmpty, err))
		default:
			return nil, NewBusinessError("AUDIENCE_FILE_INVALID", err.Error(), errors.Join(ErrAudienceFileInvalid, err))
		}
	}

	snapshot := &models.AudienceSnapshot{
		OriginalFilename: req.FileName,
		Columns:          parsed.Columns,
		ContentSHA256:    parsed.ContentSHA256,
	}
	rows := make([]*models.AudienceRow, 0, len(parsed.Rows))
	for _, r := range parsed.Rows {
		rows = append(rows, &models.AudienceRow{PhoneNumber: r.PhoneNumber, Link: r.Link})
	}
	if err := f.audienceRepo.SaveWithRows(ctx, snapshot, rows); err != nil {
		return nil, NewBusinessError("AUDIENCE_SAVE_FAILED", "Failed to save audience snapshot", err)
	}

	previewN := min(len(parsed.Rows), utils.AudiencePreviewRows)
	preview := make([]dto.AudiencePreviewRow, 0, previewN)
	for _, r := range parsed.Rows[:previewN] {
		preview = append(preview, dto.AudiencePreviewRow{PhoneNumber: r.PhoneNumber, Link: r.Link, Fields: r.Fields})
	}

	return &dto.UploadAudienceResponse{
		Message:  "Audience uploaded successfully",
		Snapshot: *audienceResponse(snapshot),
		Columns:  parsed.Columns,
		Preview:  preview,
		Dropped:  parsed.Dropped,
	}, nil
}

func (f *AudienceFlowImpl) GetAudience(ctx context.Context, snapshotUUID string) (*dto.AudienceSnapshotResponse, error) {
	snapshot, err := f.audienceRepo.ByUUID(ctx, snapshotUUID)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to lookup audience snapshot", err)
	}
	if snapshot == nil {
		return nil, NewBusinessError("AUDIENCE_NOT_FOUND", "Audience snapshot not found", ErrAudienceNotFound)
	}
	return audienceResponse(snapshot), nil
}

func audienceResponse(s *models.AudienceSnapshot) *dto.AudienceSnapshotResponse {
	return &dto.AudienceSnapshotResponse{
		UUID:             s.UUID.String(),
		OriginalFilename: s.OriginalFilename,
		RowCount:         s.RowCount,
		Columns:          s.Columns,
		ContentSHA256:    s.ContentSHA256,
		CreatedAt:        s.CreatedAt.UTC().Format(time.RFC3339),
	}
}
