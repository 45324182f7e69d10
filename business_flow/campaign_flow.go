package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
)

// CampaignFlow handles the campaign drafts
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error)
	GetCampaign(ctx context.Context, campaignUUID string) (*dto.CampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	SelectMedia(ctx context.Context, req *dto.SelectCampaignMediaRequest) (*dto.CampaignResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	customerRepo repository.CustomerRepository
	audienceRepo repository.AudienceRepository
	mediaRepo    repository.CustomerMediaRepository
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	customerRepo repository.CustomerRepository,
	audienceRepo repository.AudienceRepository,
	mediaRepo repository.CustomerMediaRepository,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		customerRepo: customerRepo,
		audienceRepo: audienceRepo,
		mediaRepo:    mediaRepo,
	}
}

// CreateCampaign validates the draft and stores it. The template must already
// carry the link placeholder; there is no later chance to fix it.
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewBusinessError("CAMPAIGN_NAME_REQUIRED", "Campaign name is required", ErrCampaignNameRequired)
	}
	if !strings.Contains(req.MessageTemplate, utils.LinkPlaceholder) {
		return nil, NewBusinessError("TEMPLATE_PLACEHOLDER_MISSING", "Message template must contain the link placeholder", ErrTemplatePlaceholderMissing)
	}

	customer, err := s.customerRepo.ByUUID(ctx, req.CustomerUUID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	if customer == nil {
		return nil, NewBusinessError("UNKNOWN_CUSTOMER", "Customer does not exist", ErrUnknownCustomer)
	}

	snapshot, err := s.audienceRepo.ByUUID(ctx, req.AudienceSnapshotUUID)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to lookup audience snapshot", err)
	}
	if snapshot == nil {
		return nil, NewBusinessError("UNKNOWN_AUDIENCE_SNAPSHOT", "Audience snapshot does not exist", ErrAudienceSnapshotNotFound)
	}

	var media *models.CustomerMedia
	if req.MediaUUID != nil && *req.MediaUUID != "" {
		media, err = s.customerMedia(ctx, *req.MediaUUID, customer.ID)
		if err != nil {
			return nil, err
		}
	}

	campaign := &models.Campaign{
		CustomerID:         customer.ID,
		Name:               name,
		AudienceSnapshotID: &snapshot.ID,
		MessageTemplate:    req.MessageTemplate,
		TestNumber:         utils.DigitsOnly(req.TestNumber),
	}
	if media != nil {
		campaign.SelectedMediaID = &media.ID
	}
	if err := s.campaignRepo.Save(ctx, campaign); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	return campaignResponse(campaign, customer, snapshot, media), nil
}

func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, campaignUUID string) (*dto.CampaignResponse, error) {
	campaign, err := s.campaignByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}
	return s.loadCampaignResponse(ctx, campaign)
}

func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	filter := models.CampaignFilter{}
	if req.CustomerUUID != "" {
		customer, err := s.customerRepo.ByUUID(ctx, req.CustomerUUID)
		if err != nil {
			return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
		}
		if customer == nil {
			return nil, NewBusinessError("UNKNOWN_CUSTOMER", "Customer does not exist", ErrUnknownCustomer)
		}
		filter.CustomerID = &customer.ID
	}
	if req.Name != "" {
		filter.Name = &req.Name
	}

	limit := utils.ClampLimit(req.Limit, utils.DefaultRunListLimit, utils.MaxRunListLimit)
	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", limit, 0)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	items := make([]dto.CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp, err := s.loadCampaignResponse(ctx, c)
		if err != nil {
			return nil, err
		}
		items = append(items, *resp)
	}
	return &dto.ListCampaignsResponse{Items: items}, nil
}

// SelectMedia changes the media reference; refused once the campaign has run
func (s *CampaignFlowImpl) SelectMedia(ctx context.Context, req *dto.SelectCampaignMediaRequest) (*dto.CampaignResponse, error) {
	campaign, err := s.campaignByUUID(ctx, req.CampaignUUID)
	if err != nil {
		return nil, err
	}

	var mediaID *uint
	if req.MediaUUID != nil && *req.MediaUUID != "" {
		media, err := s.customerMedia(ctx, *req.MediaUUID, campaign.CustomerID)
		if err != nil {
			return nil, err
		}
		mediaID = &media.ID
	}

	updated, err := s.campaignRepo.UpdateSelectedMedia(ctx, campaign.ID, mediaID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to update campaign media", err)
	}
	if !updated {
		return nil, NewBusinessError("CAMPAIGN_MEDIA_LOCKED", "Campaign media cannot change after the first run", ErrCampaignMediaLocked)
	}
	campaign.SelectedMediaID = mediaID
	return s.loadCampaignResponse(ctx, campaign)
}

func (s *CampaignFlowImpl) customerMedia(ctx context.Context, mediaUUID string, customerID uint) (*models.CustomerMedia, error) {
	media, err := s.mediaRepo.ByUUID(ctx, mediaUUID)
	if err != nil {
		return nil, NewBusinessError("MEDIA_LOOKUP_FAILED", "Failed to lookup media", err)
	}
	if media == nil {
		return nil, NewBusinessError("MEDIA_NOT_FOUND", "Media does not exist", ErrMediaNotFound)
	}
	if media.CustomerID != customerID {
		return nil, NewBusinessError("MEDIA_OWNERSHIP_MISMATCH", "Media belongs to a different customer", ErrMediaOwnershipMismatch)
	}
	return media, nil
}

func (s *CampaignFlowImpl) campaignByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	campaign, err := s.campaignRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}

func (s *CampaignFlowImpl) loadCampaignResponse(ctx context.Context, campaign *models.Campaign) (*dto.CampaignResponse, error) {
	customer, err := s.customerRepo.ByID(ctx, campaign.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	var snapshot *models.AudienceSnapshot
	if campaign.HasAudience() {
		if snapshot, err = s.audienceRepo.ByID(ctx, *campaign.AudienceSnapshotID); err != nil {
			return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to lookup audience snapshot", err)
		}
	}
	var media *models.CustomerMedia
	if campaign.SelectedMediaID != nil {
		if media, err = s.mediaRepo.ByID(ctx, *campaign.SelectedMediaID); err != nil {
			return nil, NewBusinessError("MEDIA_LOOKUP_FAILED", "Failed to lookup media", err)
		}
	}
	return campaignResponse(campaign, customer, snapshot, media), nil
}

func campaignResponse(c *models.Campaign, customer *models.Customer, snapshot *models.AudienceSnapshot, media *models.CustomerMedia) *dto.CampaignResponse {
	resp := &dto.CampaignResponse{
		UUID:            c.UUID.String(),
		Name:            c.Name,
		MessageTemplate: c.MessageTemplate,
		TestNumber:      c.TestNumber,
		CreatedAt:       c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if customer != nil {
		resp.CustomerUUID = customer.UUID.String()
		resp.CustomerName = customer.Name
	}
	if snapshot != nil {
		resp.AudienceSnapshotUUID = snapshot.UUID.String()
		resp.AudienceRowCount = snapshot.RowCount
	}
	if media != nil {
		id := media.UUID.String()
		resp.MediaUUID = &id
	}
	return resp
}
