package model

import (
	"time"
)

// SenderClass identifies who authored a message.
type SenderClass string

const (
	// SenderCustomer is an inbound message from the customer.
	SenderCustomer SenderClass = "customer"
	// SenderAttendant is a message sent by an attendant through the desk.
	SenderAttendant SenderClass = "attendant"
	// SenderDevice is a message sent from the paired phone outside the desk.
	SenderDevice SenderClass = "device"
)

// MessageKind distinguishes ordinary messages from internal notes.
type MessageKind string

const (
	KindMessage MessageKind = "message"
	KindNote    MessageKind = "note"
)

// Message is one immutable ledger entry of a conversation. ExternalID is the
// provider-assigned message id and carries the sole dedup guarantee: the
// unique index makes re-inserts of the same id a no-op. Rows without an
// external id (internal notes, unconfirmed sends) always insert.
type Message struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	ConversationID uint        `gorm:"index;not null" json:"conversation_id"`
	SenderClass    SenderClass `gorm:"size:20;not null" json:"sender_class"`
	AttendantID    *uint       `gorm:"index" json:"attendant_id,omitempty"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	MediaURL       *string     `gorm:"type:text" json:"media_url,omitempty"`
	MediaKind      *string     `gorm:"size:20" json:"media_kind,omitempty"`
	ExternalID     *string     `gorm:"uniqueIndex;size:128" json:"external_id,omitempty"`
	QuotedID       *string     `gorm:"size:128" json:"quoted_id,omitempty"`
	Kind           MessageKind `gorm:"size:20;not null;default:message" json:"kind"`
	SentAt         time.Time   `gorm:"index;not null" json:"sent_at"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (Message) TableName() string { return "messages" }

// MessageView is a ledger entry as returned by GET /api/mensagens/{conversaId},
// enriched with the attendant display name.
type MessageView struct {
	ID             uint        `json:"id"`
	ConversationID uint        `json:"conversation_id"`
	SenderClass    SenderClass `json:"sender_class"`
	AttendantID    *uint       `json:"attendant_id,omitempty"`
	AttendantName  *string     `json:"attendant_name,omitempty"`
	Content        string      `json:"content"`
	MediaURL       *string     `json:"media_url,omitempty"`
	MediaKind      *string     `json:"media_kind,omitempty"`
	ExternalID     *string     `json:"external_id,omitempty"`
	QuotedID       *string     `json:"quoted_id,omitempty"`
	Kind           MessageKind `json:"kind"`
	SentAt         time.Time   `json:"sent_at"`
}

// SendMessageRequest is the body of POST /api/enviar and /api/enviar-nota.
type SendMessageRequest struct {
	Number      string  `json:"numero"`
	Text        string  `json:"texto"`
	AttendantID uint    `json:"atendenteId"`
	QuotedID    *string `json:"quotedId,omitempty"`
}
