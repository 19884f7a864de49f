package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/model"
)

const (
	// StreamName is the name of the desk events stream.
	StreamName = "DESK"

	// SubjectPrefix is the prefix for all desk event subjects.
	SubjectPrefix = "desk"
)

// messageSubject routes message events by conversation and sender class.
func messageSubject(conversationID uint, senderClass model.SenderClass) string {
	return fmt.Sprintf("%s.conversation.%d.message.%s", SubjectPrefix, conversationID, senderClass)
}

// statusSubject routes status transition events.
func statusSubject(conversationID uint) string {
	return fmt.Sprintf("%s.conversation.%d.status", SubjectPrefix, conversationID)
}

type messageEvent struct {
	MessageID      uint              `json:"message_id"`
	ConversationID uint              `json:"conversation_id"`
	CustomerKey    string            `json:"customer_key"`
	SenderClass    model.SenderClass `json:"sender_class"`
	Kind           model.MessageKind `json:"kind"`
	SentAt         time.Time         `json:"sent_at"`
}

type statusEvent struct {
	ConversationID uint                     `json:"conversation_id"`
	Status         model.ConversationStatus `json:"status"`
	ChangedAt      time.Time                `json:"changed_at"`
}

// Publisher emits desk events to JetStream. It satisfies the intake path's
// event hook; failures are logged and never propagated.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher on an established client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// MessagePersisted publishes a message event after a successful ledger write.
func (p *Publisher) MessagePersisted(ctx context.Context, msg *model.Message, customerKey string) {
	p.publish(ctx, messageSubject(msg.ConversationID, msg.SenderClass), messageEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		CustomerKey:    customerKey,
		SenderClass:    msg.SenderClass,
		Kind:           msg.Kind,
		SentAt:         msg.SentAt,
	})
}

// StatusChanged publishes a conversation status transition.
func (p *Publisher) StatusChanged(ctx context.Context, conversationID uint, status model.ConversationStatus) {
	p.publish(ctx, statusSubject(conversationID), statusEvent{
		ConversationID: conversationID,
		Status:         status,
		ChangedAt:      time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.client.logger.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.client.js.Publish(ctx, subject, data); err != nil {
		p.client.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
