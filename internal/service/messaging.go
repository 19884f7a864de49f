package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/store"
	"github.com/zapdesk/zapdesk/internal/whatsapp"
	"github.com/zapdesk/zapdesk/pkg/logger"
	"github.com/zapdesk/zapdesk/pkg/metrics"
)

// SessionProvider owns the process-wide transport session handle. The handle
// is swappable: Reconnect tears the session down and recreates it wholesale.
type SessionProvider interface {
	Session() whatsapp.Session
	Reconnect(ctx context.Context) error
}

// Actor is the authenticated identity performing a send.
type Actor struct {
	AccountID   uint
	AttendantID uint
	Level       model.AccountLevel
}

// MediaSend describes an uploaded file to deliver.
type MediaSend struct {
	FilePath    string
	MediaURL    string
	MediaKind   string
	Caption     string
	AsVoiceNote bool
}

// Messenger drives the agent send path: connectivity check, provider send
// with a single reconnect-and-retry on the known transient failure, then
// ledger persistence through intake so the provider's own echo of the send
// dedups against the just-inserted row.
type Messenger struct {
	provider   SessionProvider
	intake     *Intake
	attendants *store.AttendantStore
	logger     *logger.Logger
}

// NewMessenger creates a messenger.
func NewMessenger(provider SessionProvider, intake *Intake, attendants *store.AttendantStore, log *logger.Logger) *Messenger {
	return &Messenger{
		provider:   provider,
		intake:     intake,
		attendants: attendants,
		logger:     log,
	}
}

// SendText sends a text reply to a customer on behalf of an attendant. The
// outbound text is prefixed with the attendant name in bold; the ledger keeps
// the raw text.
func (m *Messenger) SendText(ctx context.Context, actor Actor, req model.SendMessageRequest) (*model.Message, error) {
	if err := m.checkSend(actor, req); err != nil {
		return nil, err
	}
	att, err := m.attendants.Get(ctx, req.AttendantID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	full := fmt.Sprintf("*%s*\n%s", att.Name, req.Text)
	externalID, err := m.deliver(ctx, "text", req.Number, func(sess whatsapp.Session) (string, error) {
		return sess.SendText(ctx, req.Number, full, req.QuotedID)
	})
	if err != nil {
		return nil, err
	}

	msg, err := m.intake.RecordOutbound(ctx, Outbound{
		CustomerKey: req.Number,
		AttendantID: att.ID,
		Content:     req.Text,
		ExternalID:  externalID,
		SentAt:      time.Now().UTC(),
		QuotedID:    req.QuotedID,
	})
	if err != nil {
		return nil, err
	}
	metrics.SendsTotal.WithLabelValues("text", "ok").Inc()
	return msg, nil
}

// SendMedia uploads and sends a file on behalf of an attendant.
func (m *Messenger) SendMedia(ctx context.Context, actor Actor, number string, attendantID uint, media MediaSend) (*model.Message, error) {
	if strings.TrimSpace(number) == "" || attendantID == 0 {
		return nil, fmt.Errorf("%w: numero and atendenteId are required", ErrValidation)
	}
	if actor.Level == model.LevelOperator && actor.AttendantID != attendantID {
		return nil, ErrForbidden
	}
	att, err := m.attendants.Get(ctx, attendantID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	externalID, err := m.deliver(ctx, "media", number, func(sess whatsapp.Session) (string, error) {
		return sess.SendMedia(ctx, number, media.FilePath, whatsapp.MediaOptions{
			Caption:     media.Caption,
			AsVoiceNote: media.AsVoiceNote,
		})
	})
	if err != nil {
		return nil, err
	}

	msg, err := m.intake.RecordOutbound(ctx, Outbound{
		CustomerKey: number,
		AttendantID: att.ID,
		Content:     media.Caption,
		MediaURL:    &media.MediaURL,
		MediaKind:   &media.MediaKind,
		ExternalID:  externalID,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	metrics.SendsTotal.WithLabelValues("media", "ok").Inc()
	return msg, nil
}

// SendNote persists an internal note. Notes never reach the provider.
func (m *Messenger) SendNote(ctx context.Context, actor Actor, req model.SendMessageRequest) (*model.Message, error) {
	if err := m.checkSend(actor, req); err != nil {
		return nil, err
	}
	if _, err := m.attendants.Get(ctx, req.AttendantID); err != nil {
		return nil, mapStoreErr(err)
	}
	return m.intake.RecordNote(ctx, req.Number, req.AttendantID, req.Text)
}

// deliver runs one provider send with the fail-fast connectivity check and
// the single reconnect-and-retry reserved for the transient failure class.
func (m *Messenger) deliver(ctx context.Context, kind, number string, send func(whatsapp.Session) (string, error)) (*string, error) {
	sess := m.provider.Session()
	if sess == nil || !sess.Connected() {
		metrics.SendsTotal.WithLabelValues(kind, "not_connected").Inc()
		return nil, whatsapp.ErrNotConnected
	}

	id, err := send(sess)
	if errors.Is(err, whatsapp.ErrTransientSend) {
		m.logger.Warn("transient send failure, reconnecting and retrying once",
			zap.String("number", number),
			zap.Error(err),
		)
		if rerr := m.provider.Reconnect(ctx); rerr != nil {
			return nil, fmt.Errorf("reconnect after transient failure: %w", rerr)
		}
		sess = m.provider.Session()
		if sess == nil || !sess.Connected() {
			return nil, whatsapp.ErrNotConnected
		}
		id, err = send(sess)
	}
	if err != nil {
		metrics.SendsTotal.WithLabelValues(kind, "error").Inc()
		m.logger.Error("provider send failed",
			zap.String("number", number),
			zap.Error(err),
		)
		return nil, err
	}

	// Best effort: acknowledge the customer's pending messages on the phone.
	if mrErr := sess.MarkRead(ctx, number, nil); mrErr != nil {
		m.logger.Debug("mark-read failed", zap.String("number", number), zap.Error(mrErr))
	}

	if id == "" {
		return nil, nil
	}
	return &id, nil
}

func (m *Messenger) checkSend(actor Actor, req model.SendMessageRequest) error {
	if strings.TrimSpace(req.Number) == "" || strings.TrimSpace(req.Text) == "" || req.AttendantID == 0 {
		return fmt.Errorf("%w: numero, texto and atendenteId are required", ErrValidation)
	}
	if actor.Level == model.LevelOperator && actor.AttendantID != req.AttendantID {
		return ErrForbidden
	}
	return nil
}
