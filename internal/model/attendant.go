package model

import (
	"time"
)

// AccountLevel is the privilege level of a login account.
type AccountLevel string

const (
	// LevelAdmin may act as any attendant when sending.
	LevelAdmin AccountLevel = "admin"
	// LevelOperator may only act as its own attendant.
	LevelOperator AccountLevel = "operator"
)

// Attendant is a support agent. Name is the natural external identity;
// duplicates are rejected at creation with a case-insensitive lookup.
type Attendant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (Attendant) TableName() string { return "attendants" }

// Account is a login mapped to exactly one attendant. PasswordHash holds a
// bcrypt hash, never the plaintext credential.
type Account struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	AttendantID  uint         `gorm:"index;not null" json:"attendant_id"`
	Username     string       `gorm:"uniqueIndex;size:50;not null" json:"username"`
	PasswordHash string       `gorm:"size:100;not null" json:"-"`
	Level        AccountLevel `gorm:"size:20;not null;default:operator" json:"level"`
	CreatedAt    time.Time    `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (Account) TableName() string { return "accounts" }

// ReadMarker records, per account, the last message it has seen in a
// conversation. The listing's unread count is a global projection and does not
// consult this table; it exists for future per-account unread tracking.
type ReadMarker struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ConversationID    uint      `gorm:"uniqueIndex:ux_read_marker;not null" json:"conversation_id"`
	AccountID         uint      `gorm:"uniqueIndex:ux_read_marker;not null" json:"account_id"`
	LastReadMessageID *uint     `json:"last_read_message_id,omitempty"`
	ReadAt            time.Time `json:"read_at"`
}

// TableName implements the GORM tabler interface.
func (ReadMarker) TableName() string { return "conversation_read_markers" }

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"usuario"`
	Password string `json:"senha"`
}

// RegisterRequest is the body of POST /api/cadastro.
type RegisterRequest struct {
	AttendantID uint         `json:"atendenteId"`
	Username    string       `json:"usuario"`
	Password    string       `json:"senha"`
	Level       AccountLevel `json:"nivel,omitempty"`
}

// LoginResponse carries the issued token and the authenticated identity.
type LoginResponse struct {
	Token         string       `json:"token"`
	AccountID     uint         `json:"account_id"`
	AttendantID   uint         `json:"attendant_id"`
	AttendantName string       `json:"attendant_name"`
	Level         AccountLevel `json:"level"`
}
