package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ContactAttributes is a free-form attribute map stored as jsonb. Campaign
// variable mappings resolve template parameters from these keys at send time.
type ContactAttributes map[string]string

// Value implements the driver.Valuer interface for ContactAttributes
func (a ContactAttributes) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal(ContactAttributes{})
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for ContactAttributes
func (a *ContactAttributes) Scan(value any) error {
	if value == nil {
		*a = ContactAttributes{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ContactAttributes", value)
	}

	return json.Unmarshal(bytes, a)
}

// Contact is a recipient reference. The dispatch engine reads contacts but
// never mutates them.
type Contact struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	PhoneNumber string            `gorm:"size:20;not null;uniqueIndex:uk_contacts_phone_number" json:"phone_number"`
	Name        string            `gorm:"size:200" json:"name"`
	Attributes  ContactAttributes `gorm:"type:jsonb;not null;default:'{}'" json:"attributes"`
	CreatedAt   time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`

	// Relations
	Tags []Tag `gorm:"many2many:contact_tags" json:"tags,omitempty"`
}

// TableName returns the table name for the model
func (Contact) TableName() string { return "contacts" }

// Attribute resolves a single attribute by name. The built-in keys "name"
// and "phone" fall back to the contact record itself.
func (c *Contact) Attribute(name string) string {
	if v, ok := c.Attributes[name]; ok {
		return v
	}
	switch name {
	case "name":
		return c.Name
	case "phone":
		return c.PhoneNumber
	}
	return ""
}

// Tag is a named grouping of contacts used as a campaign audience label
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex:uk_tags_name" json:"name"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Contacts []Contact `gorm:"many2many:contact_tags" json:"contacts,omitempty"`
}

// TableName returns the table name for the model
func (Tag) TableName() string { return "tags" }

// ContactFilter represents filter criteria for contacts
type ContactFilter struct {
	ID          *uint
	PhoneNumber *string
	Name        *string
	TagName     *string
}
