package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk/zapdesk/internal/model"
)

// AccountStore manages login accounts and per-account read markers.
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore creates an account store.
func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts a new account. Usernames are unique; a taken username is
// reported as ErrDuplicate.
func (s *AccountStore) Create(ctx context.Context, acc *model.Account) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Account{}).
		Where("username = ?", acc.Username).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	return s.db.WithContext(ctx).Create(acc).Error
}

// Count returns the number of login accounts.
func (s *AccountStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Account{}).Count(&n).Error
	return n, err
}

// FindByUsername returns the account for a username.
func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	var acc model.Account
	if err := s.db.WithContext(ctx).First(&acc, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// TouchReadMarker records that an account has seen a conversation up to the
// given message. One row per (conversation, account), upserted in place.
func (s *AccountStore) TouchReadMarker(ctx context.Context, conversationID, accountID uint, lastReadMessageID *uint) error {
	marker := &model.ReadMarker{
		ConversationID:    conversationID,
		AccountID:         accountID,
		LastReadMessageID: lastReadMessageID,
		ReadAt:            time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}, {Name: "account_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_read_message_id": lastReadMessageID,
			"read_at":              time.Now().UTC(),
		}),
	}).Create(marker).Error
}
