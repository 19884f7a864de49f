package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk/zapdesk/internal/model"
)

// MessageStore is the append-only message ledger.
type MessageStore struct {
	db *gorm.DB
}

// NewMessageStore creates a message store.
func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert appends a message to the ledger. When the message carries an external
// provider id the insert is idempotent: a conflicting id is silently absorbed
// and Insert reports inserted=false. Messages without an external id always
// insert; they cannot be deduplicated against a later delivery of the same
// content under an id, which is accepted.
func (s *MessageStore) Insert(ctx context.Context, msg *model.Message) (inserted bool, err error) {
	tx := s.db.WithContext(ctx)
	if msg.ExternalID != nil {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(msg)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected > 0, nil
	}

	if err := tx.Create(msg).Error; err != nil {
		return false, err
	}
	return true, nil
}

// FindByExternalID returns the ledger row carrying a provider message id.
func (s *MessageStore) FindByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// ListByConversation returns the ledger of a conversation ascending by sent
// time, with the local sequence id as tie-break, each row enriched with the
// attendant display name.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID uint) ([]model.MessageView, error) {
	rows := make([]model.MessageView, 0)
	err := s.db.WithContext(ctx).
		Table("messages").
		Select("messages.*, attendants.name AS attendant_name").
		Joins("LEFT JOIN attendants ON attendants.id = messages.attendant_id").
		Where("messages.conversation_id = ?", conversationID).
		Order("messages.sent_at ASC, messages.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Purge empties a conversation's ledger without touching the conversation row.
func (s *MessageStore) Purge(ctx context.Context, conversationID uint) error {
	return s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&model.Message{}).Error
}

// CountByConversation returns the ledger size of a conversation.
func (s *MessageStore) CountByConversation(ctx context.Context, conversationID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}
