package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
)

// MediaFlow uploads media to the messaging provider and keeps the returned file id
type MediaFlow interface {
	UploadMedia(ctx context.Context, req *dto.UploadMediaRequest) (*dto.MediaResponse, error)
	ListMedia(ctx context.Context, customerUUID string) (*dto.ListMediaResponse, error)
}

// MediaFlowImpl implements MediaFlow
type MediaFlowImpl struct {
	customerRepo repository.CustomerRepository
	mediaRepo    repository.CustomerMediaRepository
	provider     services.MessagingProvider
	providerCfg  config.ProviderConfig
	logger       *log.Logger
}

func NewMediaFlow(
	customerRepo repository.CustomerRepository,
	mediaRepo repository.CustomerMediaRepository,
	provider services.MessagingProvider,
	providerCfg config.ProviderConfig,
	logger *log.Logger,
) MediaFlow {
	if providerCfg.RequestTimeout <= 0 {
		providerCfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MediaFlowImpl{
		customerRepo: customerRepo,
		mediaRepo:    mediaRepo,
		provider:     provider,
		providerCfg:  providerCfg,
		logger:       logger,
	}
}

// UploadMedia hands the file to the provider under the request's credential.
// Only the provider file id is persisted.
func (f *MediaFlowImpl) UploadMedia(ctx context.Context, req *dto.UploadMediaRequest) (*dto.MediaResponse, error) {
	cred, err := services.NewCredential(req.Token)
	req.Token = ""
	if err != nil {
		return nil, NewBusinessError("CREDENTIAL_REQUIRED", "Credential is required", ErrCredentialRequired)
	}
	defer cred.Wipe()

	fileType := models.MediaFileType(req.FileType)
	if !fileType.Valid() {
		return nil, NewBusinessError("INVALID_MEDIA_TYPE", "Media type must be Image or Video", ErrInvalidMediaType)
	}
	if len(req.Data) == 0 || req.FileName == "" {
		return nil, NewBusinessError("MEDIA_FILE_REQUIRED", "Media file is required", ErrMediaFileRequired)
	}

	customer, err := f.customerRepo.ByUUID(ctx, req.CustomerUUID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, f.providerCfg.RequestTimeout)
	defer cancel()
	fileID, err := f.provider.UploadFile(uploadCtx, cred, req.FileName, req.Data, string(fileType))
	if err != nil {
		f.logger.Printf("media upload for customer %s failed: %s", customer.Code, cred.Redact(err.Error()))
		if services.IsRetryableProviderError(err) {
			return nil, NewBusinessError("PROVIDER_UNAVAILABLE", "Messaging provider unavailable", ErrProviderUnavailable)
		}
		return nil, NewBusinessError("PROVIDER_REJECTED", "Messaging provider rejected the upload", ErrProviderRejected)
	}

	media := &models.CustomerMedia{
		CustomerID: customer.ID,
		FileID:     fileID,
		FileName:   req.FileName,
		FileType:   fileType,
	}
	if err := f.mediaRepo.Save(ctx, media); err != nil {
		return nil, NewBusinessError("MEDIA_SAVE_FAILED", "Failed to save media reference", err)
	}
	return mediaResponse(media, customer), nil
}

func (f *MediaFlowImpl) ListMedia(ctx context.Context, customerUUID string) (*dto.ListMediaResponse, error) {
	customer, err := f.customerRepo.ByUUID(ctx, customerUUID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	media, err := f.mediaRepo.ByFilter(ctx, models.CustomerMediaFilter{CustomerID: &customer.ID}, "created_at DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("MEDIA_LIST_FAILED", "Failed to list media", err)
	}
	items := make([]dto.MediaResponse, 0, len(media))
	for _, m := range media {
		items = append(items, *mediaResponse(m, customer))
	}
	return &dto.ListMediaResponse{Items: items}, nil
}

func mediaResponse(m *models.CustomerMedia, c *models.Customer) *dto.MediaResponse {
	return &dto.MediaResponse{
		UUID:         m.UUID.String(),
		CustomerUUID: c.UUID.String(),
		FileID:       m.FileID,
		FileName:     m.FileName,
		FileType:     string(m.FileType),
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
	}
}
