// Package model defines the persisted entities and API types of the support desk.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	// StatusWaiting means new customer activity is pending an attendant reply.
	StatusWaiting ConversationStatus = "waiting"
	// StatusInProgress means an attendant has replied and nothing reset it since.
	StatusInProgress ConversationStatus = "in_progress"
	// StatusClosed is the explicit terminal state set by agent action.
	StatusClosed ConversationStatus = "closed"
)

// Valid reports whether s is one of the three known statuses.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// Conversation is the single thread kept per customer endpoint. CustomerKey is
// the WhatsApp JID (e.g. 5511999999999@s.whatsapp.net) and is the natural key:
// creation is an upsert on it, so concurrent first contacts collapse to one row.
type Conversation struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	CustomerKey  string             `gorm:"uniqueIndex;size:64;not null" json:"customer_key"`
	CustomerName *string            `gorm:"size:128" json:"customer_name,omitempty"`
	AttendantID  *uint              `gorm:"index" json:"attendant_id,omitempty"`
	Status       ConversationStatus `gorm:"size:20;not null;default:waiting" json:"status"`
	Pinned       bool               `gorm:"not null;default:false" json:"pinned"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (Conversation) TableName() string { return "conversations" }

// ConversationListRow is one row of the listing view: the conversation enriched
// with its attendant name and the read-time projection (last message preview,
// last activity, unread count). None of the projected fields are stored.
type ConversationListRow struct {
	ID            uint               `json:"id"`
	CustomerKey   string             `json:"customer_key"`
	CustomerName  *string            `json:"customer_name,omitempty"`
	AttendantID   *uint              `json:"attendant_id,omitempty"`
	AttendantName *string            `json:"attendant_name,omitempty"`
	Status        ConversationStatus `json:"status"`
	Pinned        bool               `json:"pinned"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	LastMessage   *string            `json:"last_message,omitempty"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	UnreadCount   int                `json:"unread_count"`
}

// UpdateStatusRequest is the body of PUT /api/conversa/{id}/status.
type UpdateStatusRequest struct {
	Status ConversationStatus `json:"status"`
}

// PinRequest is the body of PATCH /api/conversa/{id}/fixar.
type PinRequest struct {
	Pinned bool `json:"fixada"`
}
