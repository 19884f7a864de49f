package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/whatsapp"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

type sentRecord struct {
	number string
	text   string
	media  bool
}

type fakeSession struct {
	connected        bool
	failuresLeft     int
	sent             []sentRecord
	markReadCalls    int
	lastQuotedID     *string
	lastMediaOptions whatsapp.MediaOptions
}

func (f *fakeSession) Connected() bool { return f.connected }

func (f *fakeSession) SendText(ctx context.Context, chatKey, text string, quotedID *string) (string, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return "", whatsapp.ErrTransientSend
	}
	f.lastQuotedID = quotedID
	f.sent = append(f.sent, sentRecord{number: chatKey, text: text})
	return fmt.Sprintf("wamid-sent-%d", len(f.sent)), nil
}

func (f *fakeSession) SendMedia(ctx context.Context, chatKey, filePath string, opts whatsapp.MediaOptions) (string, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return "", whatsapp.ErrTransientSend
	}
	f.lastMediaOptions = opts
	f.sent = append(f.sent, sentRecord{number: chatKey, media: true})
	return fmt.Sprintf("wamid-media-%d", len(f.sent)), nil
}

func (f *fakeSession) MarkRead(ctx context.Context, chatKey string, externalIDs []string) error {
	f.markReadCalls++
	return nil
}

func (f *fakeSession) Recent(window time.Duration) []whatsapp.InboundMessage { return nil }

func (f *fakeSession) Close() {}

type fakeProvider struct {
	sess       *fakeSession
	reconnects int
}

func (p *fakeProvider) Session() whatsapp.Session {
	if p.sess == nil {
		return nil
	}
	return p.sess
}

func (p *fakeProvider) Reconnect(ctx context.Context) error {
	p.reconnects++
	p.sess = &fakeSession{connected: true}
	return nil
}

func newMessengerFixture(t *testing.T, provider SessionProvider) (*deskFixture, *Messenger, *model.Attendant) {
	t.Helper()
	f := newDeskFixture(t)
	att, err := f.attendants.Create(context.Background(), "Alice")
	require.NoError(t, err)
	m := NewMessenger(provider, f.intake, f.attendants, logger.NewNop())
	return f, m, att
}

func TestSendTextFailsFastWhenDisconnected(t *testing.T) {
	provider := &fakeProvider{}
	f, m, att := newMessengerFixture(t, provider)

	_, err := m.SendText(context.Background(), Actor{AttendantID: att.ID, Level: model.LevelOperator}, model.SendMessageRequest{
		Number: "5511999993000", Text: "oi", AttendantID: att.ID,
	})
	require.ErrorIs(t, err, whatsapp.ErrNotConnected)

	// Nothing may reach the ledger on a failed send.
	rows, err := f.conversations.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSendTextPrefixesNameAndKeepsRawText(t *testing.T) {
	sess := &fakeSession{connected: true}
	provider := &fakeProvider{sess: sess}
	f, m, att := newMessengerFixture(t, provider)
	ctx := context.Background()

	msg, err := m.SendText(ctx, Actor{AttendantID: att.ID, Level: model.LevelOperator}, model.SendMessageRequest{
		Number: "5511999993001", Text: "Como posso ajudar?", AttendantID: att.ID,
	})
	require.NoError(t, err)

	require.Len(t, sess.sent, 1)
	require.Equal(t, "*Alice*\nComo posso ajudar?", sess.sent[0].text)
	require.Equal(t, "Como posso ajudar?", msg.Content)
	require.Equal(t, model.SenderAttendant, msg.SenderClass)
	require.Equal(t, 1, sess.markReadCalls)

	conv, err := f.conversations.Get(ctx, msg.ConversationID)
	require.NoError(t, err)
	require.Equal(t, model.StatusInProgress, conv.Status)
	require.NotNil(t, conv.AttendantID)
	require.Equal(t, att.ID, *conv.AttendantID)
}

func TestSendTextRetriesOnceOnTransientFailure(t *testing.T) {
	sess := &fakeSession{connected: true, failuresLeft: 1}
	provider := &fakeProvider{sess: sess}
	f, m, att := newMessengerFixture(t, provider)

	msg, err := m.SendText(context.Background(), Actor{AttendantID: att.ID, Level: model.LevelOperator}, model.SendMessageRequest{
		Number: "5511999993002", Text: "tentando", AttendantID: att.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 1, provider.reconnects)
	require.NotNil(t, msg.ExternalID)

	count, err := f.messages.CountByConversation(context.Background(), msg.ConversationID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestSendTextValidationAndPermissions(t *testing.T) {
	sess := &fakeSession{connected: true}
	_, m, att := newMessengerFixture(t, &fakeProvider{sess: sess})
	ctx := context.Background()

	_, err := m.SendText(ctx, Actor{AttendantID: att.ID, Level: model.LevelOperator}, model.SendMessageRequest{
		Number: "", Text: "oi", AttendantID: att.ID,
	})
	require.ErrorIs(t, err, ErrValidation)

	// Operators may only send as themselves.
	_, err = m.SendText(ctx, Actor{AttendantID: att.ID + 1, Level: model.LevelOperator}, model.SendMessageRequest{
		Number: "5511999993003", Text: "oi", AttendantID: att.ID,
	})
	require.ErrorIs(t, err, ErrForbidden)

	// Admins may send on behalf of any attendant.
	_, err = m.SendText(ctx, Actor{AttendantID: att.ID + 1, Level: model.LevelAdmin}, model.SendMessageRequest{
		Number: "5511999993003", Text: "oi", AttendantID: att.ID,
	})
	require.NoError(t, err)
}

func TestSendEchoDedupsAgainstLedger(t *testing.T) {
	sess := &fakeSession{connected: true}
	f, m, att := newMessengerFixture(t, &fakeProvider{sess: sess})
	ctx := context.Background()

	msg, err := m.SendText(ctx, Actor{AttendantID: att.ID, Level: model.LevelOperator}, model.SendMessageRequest{
		Number: "5511999993004", Text: "resposta", AttendantID: att.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, msg.ExternalID)

	// The provider echoes our own send back; the external id absorbs it.
	require.NoError(t, f.intake.Ingest(ctx, whatsapp.InboundMessage{
		ChatKey:    "5511999993004",
		FromMe:     true,
		Content:    "*Alice*\nresposta",
		ExternalID: *msg.ExternalID,
		Timestamp:  time.Now().UTC(),
	}))

	count, err := f.messages.CountByConversation(ctx, msg.ConversationID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	conv, err := f.conversations.Get(ctx, msg.ConversationID)
	require.NoError(t, err)
	require.Equal(t, model.StatusInProgress, conv.Status)
}

func TestSendNoteNeverTouchesProvider(t *testing.T) {
	sess := &fakeSession{connected: false}
	f, m, att := newMessengerFixture(t, &fakeProvider{sess: sess})
	ctx := context.Background()

	conv, err := f.conversations.Resolve(ctx, "5511999993005", nil)
	require.NoError(t, err)

	msg, err := m.SendNote(ctx, Actor{AttendantID: att.ID, Level: model.LevelOperator}, model.SendMessageRequest{
		Number: "5511999993005", Text: "cliente vip, priorizar", AttendantID: att.ID,
	})
	require.NoError(t, err)
	require.Equal(t, model.KindNote, msg.Kind)
	require.Empty(t, sess.sent)

	// Notes are status-neutral.
	got, err := f.conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusWaiting, got.Status)
}

func TestSendMediaRecordsAttachment(t *testing.T) {
	sess := &fakeSession{connected: true}
	f, m, att := newMessengerFixture(t, &fakeProvider{sess: sess})
	ctx := context.Background()

	msg, err := m.SendMedia(ctx, Actor{AttendantID: att.ID, Level: model.LevelOperator}, "5511999993006", att.ID, MediaSend{
		FilePath:    "/tmp/foto.jpg",
		MediaURL:    "/media/foto.jpg",
		MediaKind:   "image",
		Caption:     "segue a foto",
		AsVoiceNote: false,
	})
	require.NoError(t, err)
	require.True(t, sess.sent[0].media)
	require.NotNil(t, msg.MediaURL)
	require.Equal(t, "/media/foto.jpg", *msg.MediaURL)
	require.Equal(t, "segue a foto", msg.Content)

	count, err := f.messages.CountByConversation(ctx, msg.ConversationID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
