package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/store"
	"github.com/zapdesk/zapdesk/internal/whatsapp"
	"github.com/zapdesk/zapdesk/pkg/logger"
	"github.com/zapdesk/zapdesk/pkg/metrics"
)

// EventPublisher receives desk events after successful ledger writes.
// Publishing is best-effort and never fails the write path.
type EventPublisher interface {
	MessagePersisted(ctx context.Context, msg *model.Message, customerKey string)
	StatusChanged(ctx context.Context, conversationID uint, status model.ConversationStatus)
}

// Inbound is one customer or device message handed to the intake path.
type Inbound struct {
	CustomerKey  string
	CustomerName *string
	Content      string
	MediaURL     *string
	MediaKind    *string
	ExternalID   *string
	SentAt       time.Time
	QuotedID     *string
	FromHistory  bool
}

// Outbound is one attendant message persisted after a provider send.
type Outbound struct {
	CustomerKey string
	AttendantID uint
	Content     string
	MediaURL    *string
	MediaKind   *string
	ExternalID  *string
	SentAt      time.Time
	QuotedID    *string
}

// Intake is the reconciliation core: every message, regardless of origin
// (live socket event, history backfill, or the desk's own sends), flows
// through it exactly once into the ledger. Dedup rides on the external-id
// uniqueness constraint, so interleaved and re-delivered messages converge
// without in-process coordination.
type Intake struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	machine       StatusMachine
	events        EventPublisher
	logger        *logger.Logger
}

// NewIntake creates the intake service. events may be nil.
func NewIntake(conversations *store.ConversationStore, messages *store.MessageStore, events EventPublisher, log *logger.Logger) *Intake {
	return &Intake{
		conversations: conversations,
		messages:      messages,
		events:        events,
		logger:        log,
	}
}

// RecordInbound persists a customer message and resets the conversation to
// waiting, reopening it when closed.
func (s *Intake) RecordInbound(ctx context.Context, in Inbound) (*model.Message, error) {
	return s.record(ctx, in, model.SenderCustomer, nil, model.KindMessage, EventCustomerMessage)
}

// RecordDeviceEcho persists a message sent from the paired phone outside the
// desk. Echoes never change conversation status, so browsing history on the
// phone does not flap the queue.
func (s *Intake) RecordDeviceEcho(ctx context.Context, in Inbound) (*model.Message, error) {
	return s.record(ctx, in, model.SenderDevice, nil, model.KindMessage, EventDeviceEcho)
}

// RecordOutbound persists an attendant send, moving the conversation to
// in_progress and assigning it to the sender, whoever was assigned before.
func (s *Intake) RecordOutbound(ctx context.Context, out Outbound) (*model.Message, error) {
	in := Inbound{
		CustomerKey: out.CustomerKey,
		Content:     out.Content,
		MediaURL:    out.MediaURL,
		MediaKind:   out.MediaKind,
		ExternalID:  out.ExternalID,
		SentAt:      out.SentAt,
		QuotedID:    out.QuotedID,
	}
	return s.record(ctx, in, model.SenderAttendant, &out.AttendantID, model.KindMessage, EventAttendantMessage)
}

// RecordNote persists an internal note. Notes are never sent to the provider
// and never change status or attendant.
func (s *Intake) RecordNote(ctx context.Context, customerKey string, attendantID uint, content string) (*model.Message, error) {
	in := Inbound{CustomerKey: customerKey, Content: content}
	return s.record(ctx, in, model.SenderAttendant, &attendantID, model.KindNote, EventInternalNote)
}

func (s *Intake) record(ctx context.Context, in Inbound, class model.SenderClass, attendantID *uint, kind model.MessageKind, ev LedgerEvent) (*model.Message, error) {
	conv, err := s.conversations.Resolve(ctx, in.CustomerKey, in.CustomerName)
	if err != nil {
		return nil, err
	}

	sentAt := in.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderClass:    class,
		AttendantID:    attendantID,
		Content:        in.Content,
		MediaURL:       in.MediaURL,
		MediaKind:      in.MediaKind,
		ExternalID:     in.ExternalID,
		QuotedID:       in.QuotedID,
		Kind:           kind,
		SentAt:         sentAt,
	}

	inserted, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}

	source := "live"
	if in.FromHistory {
		source = "history"
	}
	if !inserted {
		// Duplicate delivery: expected for backfill overlap and provider
		// retries, absorbed silently.
		metrics.MessagesIngested.WithLabelValues(source, string(class), "duplicate").Inc()
		s.logger.Debug("duplicate message absorbed",
			zap.String("customer_key", in.CustomerKey),
			zap.Stringp("external_id", in.ExternalID),
		)
		if in.ExternalID != nil {
			// The conflicting insert leaves msg without a primary key;
			// hand the caller the row that won instead.
			if existing, lerr := s.messages.FindByExternalID(ctx, *in.ExternalID); lerr == nil {
				return existing, nil
			}
		}
		return msg, nil
	}
	metrics.MessagesIngested.WithLabelValues(source, string(class), "inserted").Inc()

	if next, changed := s.machine.Next(conv.Status, ev); changed {
		setAttendant := ev == EventAttendantMessage
		if err := s.conversations.UpdateStatus(ctx, conv.ID, next, attendantID, setAttendant); err != nil {
			return nil, err
		}
		if s.events != nil {
			s.events.StatusChanged(ctx, conv.ID, next)
		}
	}

	if s.events != nil {
		s.events.MessagePersisted(ctx, msg, in.CustomerKey)
	}

	s.logger.Info("message recorded",
		zap.Uint("conversation_id", conv.ID),
		zap.String("sender_class", string(class)),
		zap.String("source", source),
		zap.Stringp("external_id", in.ExternalID),
	)
	return msg, nil
}

// Ingest implements whatsapp.Sink: it routes transport messages into the
// customer or device-echo path based on the from-self flag.
func (s *Intake) Ingest(ctx context.Context, msg whatsapp.InboundMessage) error {
	in := Inbound{
		CustomerKey: msg.ChatKey,
		Content:     msg.Content,
		MediaURL:    msg.MediaURL,
		MediaKind:   msg.MediaKind,
		SentAt:      msg.Timestamp,
		QuotedID:    msg.QuotedID,
		FromHistory: msg.FromHistory,
	}
	if msg.ExternalID != "" {
		id := msg.ExternalID
		in.ExternalID = &id
	}
	if name := strings.TrimSpace(msg.PushName); name != "" && !msg.FromMe {
		in.CustomerName = &name
	}

	var err error
	if msg.FromMe {
		_, err = s.RecordDeviceEcho(ctx, in)
	} else {
		_, err = s.RecordInbound(ctx, in)
	}
	return err
}
