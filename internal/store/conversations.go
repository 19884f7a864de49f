package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk/zapdesk/internal/model"
)

// ConversationStore is the conversation directory: one row per customer key.
type ConversationStore struct {
	db *gorm.DB
}

// NewConversationStore creates a conversation store.
func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Resolve upserts the conversation for a customer key and returns it. On first
// sight the row is created with status waiting; on subsequent sight only the
// display name (when a non-null one is supplied) and the activity timestamp
// are refreshed. The upsert is a single atomic statement so two concurrent
// first contacts for the same customer cannot create two rows.
func (s *ConversationStore) Resolve(ctx context.Context, customerKey string, customerName *string) (*model.Conversation, error) {
	conv := &model.Conversation{
		CustomerKey:  customerKey,
		CustomerName: customerName,
		Status:       model.StatusWaiting,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"customer_name": gorm.Expr("COALESCE(excluded.customer_name, conversations.customer_name)"),
			"updated_at":    time.Now().UTC(),
		}),
	}).Create(conv).Error
	if err != nil {
		return nil, err
	}

	// Re-read by key: on conflict the ID of the existing row is not
	// reported back portably across dialects.
	var out model.Conversation
	if err := s.db.WithContext(ctx).First(&out, "customer_key = ?", customerKey).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns a conversation by id.
func (s *ConversationStore) Get(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// listQuery computes the listing projection at read time. The unread count is
// the number of customer messages strictly newer than the latest attendant
// message (epoch when none exists), so it is always consistent with the ledger
// and needs no stored counter or invalidation.
const listQuery = `
SELECT
    c.id, c.customer_key, c.customer_name, c.attendant_id, c.status, c.pinned,
    c.created_at, c.updated_at,
    a.name AS attendant_name,
    (SELECT m.content FROM messages m
     WHERE m.conversation_id = c.id
     ORDER BY m.sent_at DESC, m.id DESC LIMIT 1) AS last_message,
    (SELECT m.sent_at FROM messages m
     WHERE m.conversation_id = c.id
     ORDER BY m.sent_at DESC, m.id DESC LIMIT 1) AS last_message_at,
    (SELECT COUNT(*) FROM messages m
     WHERE m.conversation_id = c.id
       AND m.sender_class = 'customer'
       AND m.sent_at > COALESCE(
           (SELECT MAX(m2.sent_at) FROM messages m2
            WHERE m2.conversation_id = c.id AND m2.sender_class = 'attendant'),
           ?)) AS unread_count
FROM conversations c
LEFT JOIN attendants a ON a.id = c.attendant_id
ORDER BY
    c.pinned DESC,
    COALESCE(
        (SELECT m.sent_at FROM messages m
         WHERE m.conversation_id = c.id
         ORDER BY m.sent_at DESC, m.id DESC LIMIT 1),
        c.updated_at) DESC`

// List returns every conversation with projected listing fields, ordered
// pinned first, then most recent activity.
func (s *ConversationStore) List(ctx context.Context) ([]model.ConversationListRow, error) {
	rows := make([]model.ConversationListRow, 0)
	epoch := time.Unix(0, 0).UTC()
	if err := s.db.WithContext(ctx).Raw(listQuery, epoch).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatus sets the lifecycle status, optionally reassigning the
// attendant. setAttendant distinguishes "leave attendant untouched" from
// "clear it": the attendant reference only moves on agent sends.
func (s *ConversationStore) UpdateStatus(ctx context.Context, id uint, status model.ConversationStatus, attendantID *uint, setAttendant bool) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if setAttendant {
		updates["attendant_id"] = attendantID
	}

	res := s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPinned toggles the pin flag.
func (s *ConversationStore) SetPinned(ctx context.Context, id uint, pinned bool) error {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Update("pinned", pinned)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation and cascades to its messages and read markers.
func (s *ConversationStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.ReadMarker{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Conversation{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
