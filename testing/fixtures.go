package testing

import (
	"fmt"
	"math/rand"

	"github.com/lmoretti/whatsflow/models"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestTag creates an active tag
func (tf *TestFixtures) CreateTestTag(name string) (*models.Tag, error) {
	tag := &models.Tag{
		Name:     name,
		IsActive: true,
	}
	if err := tf.DB.DB.Create(tag).Error; err != nil {
		return nil, fmt.Errorf("failed to create tag %s: %w", name, err)
	}
	return tag, nil
}

// CreateTestContact creates a contact with a random phone number, tagged
// with the given tags.
func (tf *TestFixtures) CreateTestContact(name string, tags ...*models.Tag) (*models.Contact, error) {
	randomDigits := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)

	contact := &models.Contact{
		PhoneNumber: fmt.Sprintf("+549%s", randomDigits),
		Name:        name,
		Attributes: models.ContactAttributes{
			"city": "Buenos Aires",
		},
	}
	for _, tag := range tags {
		contact.Tags = append(contact.Tags, *tag)
	}

	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create contact %s: %w", name, err)
	}
	return contact, nil
}

// CreateTestAudience creates a tag plus n contacts carrying it
func (tf *TestFixtures) CreateTestAudience(tagName string, n int) (*models.Tag, []*models.Contact, error) {
	tag, err := tf.CreateTestTag(tagName)
	if err != nil {
		return nil, nil, err
	}

	contacts := make([]*models.Contact, 0, n)
	for i := 0; i < n; i++ {
		contact, err := tf.CreateTestContact(fmt.Sprintf("Contact %d", i+1), tag)
		if err != nil {
			return nil, nil, err
		}
		contacts = append(contacts, contact)
	}
	return tag, contacts, nil
}

// CreateTestCampaign creates a campaign in the given status targeting tagName
func (tf *TestFixtures) CreateTestCampaign(name, tagName string, status models.CampaignStatus) (*models.Campaign, error) {
	campaign := &models.Campaign{
		Name:             name,
		TemplateName:     "promo_template",
		TemplateLanguage: "es_AR",
		TagName:          tagName,
		Status:           status,
		Variables:        []string{"name"},
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create campaign %s: %w", name, err)
	}
	return campaign, nil
}

// CreateTestDispatchLog creates a dispatch log row for a campaign/contact pair
func (tf *TestFixtures) CreateTestDispatchLog(campaign *models.Campaign, contact *models.Contact, status models.DispatchStatus) (*models.DispatchLog, error) {
	entry := &models.DispatchLog{
		CampaignID:  campaign.ID,
		ContactID:   contact.ID,
		PhoneNumber: contact.PhoneNumber,
		Status:      status,
	}
	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create dispatch log: %w", err)
	}
	return entry, nil
}
