package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Amaterasu/models"
	"gorm.io/gorm"
)

// RunArtifactRepositoryImpl implements RunArtifactRepository
type RunArtifactRepositoryImpl struct {
	*BaseRepository[models.RunArtifact, any]
}

func NewRunArtifactRepository(db *gorm.DB) RunArtifactRepository {
	return &RunArtifactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RunArtifact, any](db, nil),
	}
}

func (r *RunArtifactRepositoryImpl) ByRunID(ctx context.Context, runID uint) (*models.RunArtifact, error) {
	var artifact models.RunArtifact
	err := r.getDB(ctx).Where("run_id = ?", runID).First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find artifact for run %d: %w", runID, err)
	}
	return &artifact, nil
}
