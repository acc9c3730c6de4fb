package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DispatchStatus enumerates the delivery status of a single dispatch attempt
type DispatchStatus string

const (
	DispatchStatusPending   DispatchStatus = "pending"
	DispatchStatusSent      DispatchStatus = "sent"
	DispatchStatusDelivered DispatchStatus = "delivered"
	DispatchStatusRead      DispatchStatus = "read"
	DispatchStatusFailed    DispatchStatus = "failed"
	DispatchStatusPaused    DispatchStatus = "paused"
)

// String returns the string representation of the status
func (s DispatchStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s DispatchStatus) Valid() bool {
	switch s {
	case DispatchStatusPending, DispatchStatusSent, DispatchStatusDelivered,
		DispatchStatusRead, DispatchStatusFailed, DispatchStatusPaused:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for DispatchStatus
func (s *DispatchStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = DispatchStatus(v)
	case []byte:
		*s = DispatchStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DispatchStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for DispatchStatus
func (s DispatchStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid DispatchStatus: %s", s)
	}
	return string(s), nil
}

// rank orders the forward-only delivery progression. failed and paused are
// terminal and carry no rank.
func (s DispatchStatus) rank() int {
	switch s {
	case DispatchStatusPending:
		return 0
	case DispatchStatusSent:
		return 1
	case DispatchStatusDelivered:
		return 2
	case DispatchStatusRead:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether a log currently in status s may move to
// newStatus. Status only moves forward along pending -> sent -> delivered ->
// read. failed overwrites anything except read and is never overwritten.
// paused applies only to still-pending logs.
func (s DispatchStatus) CanAdvanceTo(newStatus DispatchStatus) bool {
	if s == newStatus {
		return false
	}
	switch newStatus {
	case DispatchStatusFailed:
		return s != DispatchStatusFailed && s != DispatchStatusRead && s != DispatchStatusPaused
	case DispatchStatusPaused:
		return s == DispatchStatusPending
	default:
		return s.rank() >= 0 && newStatus.rank() > s.rank()
	}
}

// OverwritableBy lists every status that newStatus may legally replace.
// Used to express the forward-only rule as a single guarded UPDATE.
func OverwritableBy(newStatus DispatchStatus) []DispatchStatus {
	all := []DispatchStatus{
		DispatchStatusPending, DispatchStatusSent, DispatchStatusDelivered,
		DispatchStatusRead, DispatchStatusFailed, DispatchStatusPaused,
	}
	var out []DispatchStatus
	for _, s := range all {
		if s.CanAdvanceTo(newStatus) {
			out = append(out, s)
		}
	}
	return out
}

// DispatchLog tracks the send attempt and delivery status for a single
// (campaign, contact) pair. The (campaign_id, contact_id) unique constraint
// is the sole defense against duplicate sends.
type DispatchLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CampaignID  uint           `gorm:"not null;uniqueIndex:uk_dispatch_logs_campaign_contact;index:idx_dispatch_logs_campaign_status,priority:1" json:"campaign_id"`
	ContactID   uint           `gorm:"not null;uniqueIndex:uk_dispatch_logs_campaign_contact" json:"contact_id"`
	PhoneNumber string         `gorm:"size:20;not null" json:"phone_number"`
	WAMessageID *string        `gorm:"size:100;index:idx_dispatch_logs_wa_message_id" json:"wa_message_id,omitempty"`
	Status      DispatchStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_dispatch_logs_campaign_status,priority:2" json:"status"`
	ErrorDetail *string        `gorm:"type:text" json:"error_detail,omitempty"`
	CreatedAt   time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for the model
func (DispatchLog) TableName() string { return "dispatch_logs" }

// IsTerminal reports whether the log can no longer be picked up by a dispatcher
func (l *DispatchLog) IsTerminal() bool {
	return l.Status != DispatchStatusPending
}

// DispatchLogFilter provides filter fields for repository queries
type DispatchLogFilter struct {
	ID            *uint
	CampaignID    *uint
	ContactID     *uint
	PhoneNumber   *string
	WAMessageID   *string
	Status        *DispatchStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
