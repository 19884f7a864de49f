package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/zapdesk/zapdesk/pkg/logger"
)

// ProviderConfig configures the whatsmeow-backed session.
type ProviderConfig struct {
	// StoreDriver/StoreDSN locate the whatsmeow credential store. This is a
	// separate database from the desk's own.
	StoreDriver string
	StoreDSN    string
	// MediaDir is where downloaded attachments are written.
	MediaDir string
	// MediaBaseURL prefixes the public URL of downloaded attachments.
	MediaBaseURL string
}

// Dialer returns a DialFunc that establishes whatsmeow sessions with cfg.
func Dialer(cfg ProviderConfig, log *logger.Logger) DialFunc {
	return func(ctx context.Context, h Handlers) (Session, error) {
		return dialMeow(ctx, cfg, h, log)
	}
}

type meowSession struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	recent    *recentStore
	handlers  Handlers
	cfg       ProviderConfig
	logger    *logger.Logger
}

func dialMeow(ctx context.Context, cfg ProviderConfig, h Handlers, log *logger.Logger) (Session, error) {
	container, err := sqlstore.New(cfg.StoreDriver, cfg.StoreDSN, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open whatsmeow store: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	s := &meowSession{
		cli:       whatsmeow.NewClient(device, waLog.Noop),
		container: container,
		recent:    newRecentStore(),
		handlers:  h,
		cfg:       cfg,
		logger:    log,
	}
	s.cli.AddEventHandler(s.handleEvent)

	if s.cli.Store.ID == nil {
		// No stored credentials yet. Pairing requires consuming the QR
		// channel before connecting.
		qrChan, err := s.cli.GetQRChannel(ctx)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("request pairing channel: %w", err)
		}
		if err := s.cli.Connect(); err != nil {
			container.Close()
			return nil, fmt.Errorf("connect: %w", err)
		}
		go func() {
			for item := range qrChan {
				if item.Event == "code" && h.OnQR != nil {
					h.OnQR(item.Code)
				}
			}
		}()
	} else if err := s.cli.Connect(); err != nil {
		container.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	return s, nil
}

func (s *meowSession) Connected() bool {
	return s.cli.IsConnected() && s.cli.IsLoggedIn()
}

func (s *meowSession) SendText(ctx context.Context, chatKey, text string, quotedID *string) (string, error) {
	jid, err := parseChatJID(chatKey)
	if err != nil {
		return "", err
	}

	var msg *waE2E.Message
	if quotedID != nil && *quotedID != "" {
		msg = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: s.quoteContext(jid, *quotedID),
		}}
	} else {
		msg = &waE2E.Message{Conversation: proto.String(text)}
	}

	resp, err := s.cli.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", s.mapSendErr(err)
	}
	return string(resp.ID), nil
}

func (s *meowSession) SendMedia(ctx context.Context, chatKey, filePath string, opts MediaOptions) (string, error) {
	jid, err := parseChatJID(chatKey)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read media file: %w", err)
	}

	mimetype := http.DetectContentType(data)
	msg, mediaType := s.buildMediaMessage(mimetype, filepath.Base(filePath), opts)

	uploaded, err := s.cli.Upload(ctx, data, mediaType)
	if err != nil {
		return "", s.mapSendErr(fmt.Errorf("upload media: %w", err))
	}
	attachUpload(msg, mimetype, &uploaded)

	resp, err := s.cli.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", s.mapSendErr(err)
	}
	return string(resp.ID), nil
}

func (s *meowSession) MarkRead(ctx context.Context, chatKey string, externalIDs []string) error {
	jid, err := parseChatJID(chatKey)
	if err != nil {
		return err
	}
	if len(externalIDs) == 0 {
		externalIDs = s.recent.unreadIDs(chatKey)
	}
	if len(externalIDs) == 0 {
		return nil
	}
	ids := make([]types.MessageID, 0, len(externalIDs))
	for _, id := range externalIDs {
		ids = append(ids, types.MessageID(id))
	}
	return s.cli.MarkRead(ids, time.Now(), jid, jid)
}

func (s *meowSession) Recent(window time.Duration) []InboundMessage {
	return s.recent.recent(window)
}

func (s *meowSession) Close() {
	s.cli.Disconnect()
	s.container.Close()
}

// mapSendErr classifies socket-level failures as transient so the caller can
// reconnect and retry once.
func (s *meowSession) mapSendErr(err error) error {
	if errors.Is(err, whatsmeow.ErrNotConnected) {
		return fmt.Errorf("%w: %v", ErrTransientSend, err)
	}
	return err
}

func (s *meowSession) quoteContext(chat types.JID, quotedID string) *waE2E.ContextInfo {
	participant := chat.ToNonAD().String()
	quotedText := " "
	if cached, ok := s.recent.lookup(chat.String(), quotedID); ok {
		if cached.FromMe && s.cli.Store.ID != nil {
			participant = s.cli.Store.ID.ToNonAD().String()
		}
		if cached.Content != "" {
			quotedText = cached.Content
		}
	}
	return &waE2E.ContextInfo{
		StanzaID:      proto.String(quotedID),
		Participant:   proto.String(participant),
		QuotedMessage: &waE2E.Message{Conversation: proto.String(quotedText)},
	}
}

func (s *meowSession) buildMediaMessage(mimetype, filename string, opts MediaOptions) (*waE2E.Message, whatsmeow.MediaType) {
	base := strings.Split(mimetype, ";")[0]
	switch {
	case opts.AsVoiceNote:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			PTT: proto.Bool(true),
		}}, whatsmeow.MediaAudio
	case strings.HasPrefix(base, "image/"):
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption: proto.String(opts.Caption),
		}}, whatsmeow.MediaImage
	case strings.HasPrefix(base, "video/"):
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption: proto.String(opts.Caption),
		}}, whatsmeow.MediaVideo
	case strings.HasPrefix(base, "audio/"):
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, whatsmeow.MediaAudio
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:  proto.String(opts.Caption),
			FileName: proto.String(filename),
		}}, whatsmeow.MediaDocument
	}
}

// attachUpload fills the upload envelope fields shared by all media kinds.
func attachUpload(msg *waE2E.Message, mimetype string, up *whatsmeow.UploadResponse) {
	switch {
	case msg.ImageMessage != nil:
		m := msg.ImageMessage
		m.Mimetype = proto.String(mimetype)
		m.URL, m.DirectPath = proto.String(up.URL), proto.String(up.DirectPath)
		m.MediaKey, m.FileEncSHA256, m.FileSHA256 = up.MediaKey, up.FileEncSHA256, up.FileSHA256
		m.FileLength = proto.Uint64(up.FileLength)
	case msg.VideoMessage != nil:
		m := msg.VideoMessage
		m.Mimetype = proto.String(mimetype)
		m.URL, m.DirectPath = proto.String(up.URL), proto.String(up.DirectPath)
		m.MediaKey, m.FileEncSHA256, m.FileSHA256 = up.MediaKey, up.FileEncSHA256, up.FileSHA256
		m.FileLength = proto.Uint64(up.FileLength)
	case msg.AudioMessage != nil:
		m := msg.AudioMessage
		if m.GetPTT() {
			m.Mimetype = proto.String("audio/ogg; codecs=opus")
		} else {
			m.Mimetype = proto.String(mimetype)
		}
		m.URL, m.DirectPath = proto.String(up.URL), proto.String(up.DirectPath)
		m.MediaKey, m.FileEncSHA256, m.FileSHA256 = up.MediaKey, up.FileEncSHA256, up.FileSHA256
		m.FileLength = proto.Uint64(up.FileLength)
	case msg.DocumentMessage != nil:
		m := msg.DocumentMessage
		m.Mimetype = proto.String(mimetype)
		m.URL, m.DirectPath = proto.String(up.URL), proto.String(up.DirectPath)
		m.MediaKey, m.FileEncSHA256, m.FileSHA256 = up.MediaKey, up.FileEncSHA256, up.FileSHA256
		m.FileLength = proto.Uint64(up.FileLength)
	}
}

func (s *meowSession) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Message:
		s.handleLiveMessage(evt, false)
	case *events.HistorySync:
		s.handleHistorySync(evt)
	case *events.Connected:
		s.emitState(StateConnected)
	case *events.Disconnected:
		s.emitState(StateDisconnected)
	case *events.StreamReplaced:
		s.emitState(StateDisconnected)
	case *events.LoggedOut:
		s.emitState(StateLoggedOut)
	}
}

func (s *meowSession) emitState(state ConnectionState) {
	if s.handlers.OnState != nil {
		s.handlers.OnState(state)
	}
}

func (s *meowSession) handleLiveMessage(evt *events.Message, fromHistory bool) {
	msg, ok := s.convert(evt, fromHistory)
	if !ok {
		return
	}
	s.recent.add(msg)
	if s.handlers.OnMessage != nil {
		s.handlers.OnMessage(msg)
	}
}

func (s *meowSession) handleHistorySync(evt *events.HistorySync) {
	for _, conv := range evt.Data.GetConversations() {
		jid, err := types.ParseJID(conv.GetID())
		if err != nil || !IsCustomerEndpoint(jid.String()) {
			continue
		}
		for _, histMsg := range conv.GetMessages() {
			parsed, err := s.cli.ParseWebMessage(jid, histMsg.GetMessage())
			if err != nil {
				continue
			}
			s.handleLiveMessage(parsed, true)
		}
	}
}

// convert maps a provider event to the neutral inbound shape, downloading any
// attachment. A failed download drops the media but keeps the message.
func (s *meowSession) convert(evt *events.Message, fromHistory bool) (InboundMessage, bool) {
	if evt.Message == nil {
		return InboundMessage{}, false
	}
	chat := evt.Info.Chat.ToNonAD().String()
	if !IsCustomerEndpoint(chat) {
		return InboundMessage{}, false
	}

	msg := InboundMessage{
		ChatKey:     chat,
		PushName:    evt.Info.PushName,
		FromMe:      evt.Info.IsFromMe,
		ExternalID:  string(evt.Info.ID),
		Timestamp:   evt.Info.Timestamp,
		FromHistory: fromHistory,
	}

	content := evt.Message
	switch {
	case content.GetConversation() != "":
		msg.Content = content.GetConversation()
	case content.GetExtendedTextMessage() != nil:
		ext := content.GetExtendedTextMessage()
		msg.Content = ext.GetText()
		if qid := ext.GetContextInfo().GetStanzaID(); qid != "" {
			msg.QuotedID = &qid
		}
	case content.GetImageMessage() != nil:
		img := content.GetImageMessage()
		msg.Content = img.GetCaption()
		s.downloadMedia(&msg, img, "image", img.GetMimetype())
	case content.GetVideoMessage() != nil:
		vid := content.GetVideoMessage()
		msg.Content = vid.GetCaption()
		s.downloadMedia(&msg, vid, "video", vid.GetMimetype())
	case content.GetAudioMessage() != nil:
		aud := content.GetAudioMessage()
		s.downloadMedia(&msg, aud, "audio", aud.GetMimetype())
	case content.GetDocumentMessage() != nil:
		doc := content.GetDocumentMessage()
		msg.Content = doc.GetCaption()
		if msg.Content == "" {
			msg.Content = doc.GetFileName()
		}
		s.downloadMedia(&msg, doc, "document", doc.GetMimetype())
	case content.GetStickerMessage() != nil:
		s.downloadMedia(&msg, content.GetStickerMessage(), "sticker", content.GetStickerMessage().GetMimetype())
	default:
		// Protocol messages, reactions and receipts carry no ledger content.
		return InboundMessage{}, false
	}

	if msg.Content == "" && msg.MediaURL == nil {
		return InboundMessage{}, false
	}
	return msg, true
}

func (s *meowSession) downloadMedia(msg *InboundMessage, part whatsmeow.DownloadableMessage, kind, mimetype string) {
	data, err := s.cli.Download(part)
	if err != nil {
		s.logger.Warn("media download failed",
			zap.String("chat", msg.ChatKey),
			zap.String("external_id", msg.ExternalID),
			zap.Error(err))
		return
	}
	name := uuid.NewString() + extensionFor(mimetype)
	path := filepath.Join(s.cfg.MediaDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("media write failed", zap.String("path", path), zap.Error(err))
		return
	}
	url := strings.TrimSuffix(s.cfg.MediaBaseURL, "/") + "/" + name
	msg.MediaURL = &url
	msg.MediaKind = &kind
}

func parseChatJID(chatKey string) (types.JID, error) {
	if !strings.Contains(chatKey, "@") {
		return types.NewJID(chatKey, types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(chatKey)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid chat key %q: %w", chatKey, err)
	}
	return jid, nil
}

func extensionFor(mimetype string) string {
	base := strings.TrimSpace(strings.Split(mimetype, ";")[0])
	switch base {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
