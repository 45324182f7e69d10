package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCustomer creates a customer with a random unique code
func (tf *TestFixtures) CreateTestCustomer() (*models.Customer, error) {
	suffix := fmt.Sprintf("%06d", rand.Intn(1000000))
	customer := &models.Customer{
		Code:      "cust-" + suffix,
		Name:      "Customer " + suffix,
		ServiceID: "svc-" + suffix,
	}
	if err := tf.DB.DB.Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create test customer: %w", err)
	}
	return customer, nil
}

// CreateTestMedia registers an already-uploaded provider file for a customer
func (tf *TestFixtures) CreateTestMedia(customerID uint) (*models.CustomerMedia, error) {
	media := &models.CustomerMedia{
		CustomerID: customerID,
		FileID:     "file-" + uuid.NewString(),
		FileName:   "banner.png",
		FileType:   models.MediaFileTypeImage,
	}
	if err := tf.DB.DB.Create(media).Error; err != nil {
		return nil, fmt.Errorf("failed to create test media: %w", err)
	}
	return media, nil
}

// CreateTestAudience stores a snapshot with n rows
func (tf *TestFixtures) CreateTestAudience(n int) (*models.AudienceSnapshot, error) {
	snapshot := &models.AudienceSnapshot{
		OriginalFilename: "audience.csv",
		RowCount:         n,
		Columns:          pq.StringArray{"phone_number", "link"},
		ContentSHA256:    fmt.Sprintf("%064d", rand.Int63()),
	}
	if err := tf.DB.DB.Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audience: %w", err)
	}

	rows := make([]*models.AudienceRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, &models.AudienceRow{
			SnapshotID:  snapshot.ID,
			Position:    i,
			PhoneNumber: fmt.Sprintf("98912%07d", i),
			Link:        fmt.Sprintf("https://example.com/r/%d", i),
		})
	}
	if len(rows) > 0 {
		if err := tf.DB.DB.Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to create test audience rows: %w", err)
		}
	}
	return snapshot, nil
}

// CreateTestCampaign creates a campaign whose template carries the link placeholder
func (tf *TestFixtures) CreateTestCampaign(customerID uint, snapshotID, mediaID *uint) (*models.Campaign, error) {
	campaign := &models.Campaign{
		CustomerID:         customerID,
		Name:               "Campaign " + uuid.NewString()[:8],
		AudienceSnapshotID: snapshotID,
		SelectedMediaID:    mediaID,
		MessageTemplate:    "Spring offer: %s",
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestScheduledRun creates a scheduled run in the given status
func (tf *TestFixtures) CreateTestScheduledRun(campaignID uint, runAt time.Time, status models.ScheduledRunStatus) (*models.ScheduledRun, error) {
	sr := &models.ScheduledRun{
		CampaignID: campaignID,
		RunAt:      runAt,
		Status:     status,
	}
	if err := tf.DB.DB.Create(sr).Error; err != nil {
		return nil, fmt.Errorf("failed to create test scheduled run: %w", err)
	}
	return sr, nil
}

// CreateTestRun creates a running run record for a campaign
func (tf *TestFixtures) CreateTestRun(campaignID uint, trigger models.RunTrigger) (*models.RunRecord, error) {
	run := &models.RunRecord{
		CampaignID: campaignID,
		Trigger:    trigger,
		Status:     models.RunStatusRunning,
	}
	if err := tf.DB.DB.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}
