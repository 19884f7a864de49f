package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/store"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

// ConversationService serves the listing view and the explicit conversation
// operations (status override, pin, purge, delete).
type ConversationService struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	accounts      *store.AccountStore
	machine       StatusMachine
	events        EventPublisher
	logger        *logger.Logger
}

// NewConversationService creates a conversation service. events may be nil.
func NewConversationService(conversations *store.ConversationStore, messages *store.MessageStore, accounts *store.AccountStore, events EventPublisher, log *logger.Logger) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		accounts:      accounts,
		events:        events,
		logger:        log,
	}
}

// List returns all conversations ordered pinned-first then by recency, each
// with the read-time projection fields.
func (s *ConversationService) List(ctx context.Context) ([]model.ConversationListRow, error) {
	return s.conversations.List(ctx)
}

// Messages returns a conversation's ledger ascending. When accountID is
// non-zero the account's read marker is advanced to the newest entry; the
// marker is bookkeeping only and does not feed the listing's unread count.
func (s *ConversationService) Messages(ctx context.Context, conversationID, accountID uint) ([]model.MessageView, error) {
	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return nil, mapStoreErr(err)
	}

	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if accountID != 0 && len(msgs) > 0 {
		last := msgs[len(msgs)-1].ID
		if err := s.accounts.TouchReadMarker(ctx, conversationID, accountID, &last); err != nil {
			s.logger.Warn("failed to advance read marker",
				zap.Uint("conversation_id", conversationID),
				zap.Uint("account_id", accountID),
				zap.Error(err),
			)
		}
	}
	return msgs, nil
}

// SetStatus applies the explicit agent override. Any state may move to any
// state; only the value itself is validated.
func (s *ConversationService) SetStatus(ctx context.Context, id uint, status model.ConversationStatus) error {
	if !s.machine.ValidOverride(status) {
		return fmt.Errorf("%w: status must be waiting, in_progress or closed", ErrValidation)
	}
	if err := s.conversations.UpdateStatus(ctx, id, status, nil, false); err != nil {
		return mapStoreErr(err)
	}
	if s.events != nil {
		s.events.StatusChanged(ctx, id, status)
	}
	return nil
}

// Pin toggles the pin flag of a conversation.
func (s *ConversationService) Pin(ctx context.Context, id uint, pinned bool) error {
	return mapStoreErr(s.conversations.SetPinned(ctx, id, pinned))
}

// Purge empties a conversation's ledger. The conversation row survives and
// keeps its id.
func (s *ConversationService) Purge(ctx context.Context, id uint) error {
	if _, err := s.conversations.Get(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	return s.messages.Purge(ctx, id)
}

// Delete removes a conversation and all its messages.
func (s *ConversationService) Delete(ctx context.Context, id uint) error {
	return mapStoreErr(s.conversations.Delete(ctx, id))
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
