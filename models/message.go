package models

import "time"

// MessageDirection distinguishes inbound from outbound messages
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// Message records one message exchanged with the gateway for the dashboard's
// message history. The dispatcher creates an outbound row for every
// successful campaign send.
type Message struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	WAMessageID *string          `gorm:"size:100;uniqueIndex:uk_messages_wa_message_id" json:"wa_message_id,omitempty"`
	PhoneNumber string           `gorm:"size:20;not null;index:idx_messages_phone_number" json:"phone_number"`
	Direction   MessageDirection `gorm:"type:varchar(10);not null" json:"direction"`
	MessageType string           `gorm:"size:20;not null;default:'template'" json:"message_type"`
	Content     *string          `gorm:"type:text" json:"content,omitempty"`
	Timestamp   time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_messages_timestamp" json:"timestamp"`
}

// TableName returns the table name for the model
func (Message) TableName() string { return "messages" }

// MessageFilter provides filter fields for repository queries
type MessageFilter struct {
	ID          *uint
	WAMessageID *string
	PhoneNumber *string
	Direction   *MessageDirection
	After       *time.Time
	Before      *time.Time
}
