package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/middleware"
	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/service"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

// maxUploadBytes caps media uploads at 50MB, matching provider limits.
const maxUploadBytes = 50 << 20

// MessageHandler handles the agent send endpoints.
type MessageHandler struct {
	messenger    *service.Messenger
	mediaDir     string
	mediaBaseURL string
	logger       *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messenger *service.Messenger, mediaDir, mediaBaseURL string, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messenger:    messenger,
		mediaDir:     mediaDir,
		mediaBaseURL: mediaBaseURL,
		logger:       log,
	}
}

func actorFrom(r *http.Request) service.Actor {
	ctx := r.Context()
	return service.Actor{
		AccountID:   middleware.GetAccountID(ctx),
		AttendantID: middleware.GetAttendantID(ctx),
		Level:       middleware.GetLevel(ctx),
	}
}

// Send handles POST /api/enviar
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateCustomerNumber(req.Number); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messenger.SendText(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// SendNote handles POST /api/enviar-nota
func (h *MessageHandler) SendNote(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messenger.SendNote(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// SendMedia handles POST /api/enviar-midia (multipart form).
func (h *MessageHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}

	number := r.FormValue("numero")
	if err := middleware.ValidateCustomerNumber(number); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attendantID, err := middleware.ParseID(r.FormValue("atendenteId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid atendenteId")
		return
	}

	file, header, err := r.FormFile("arquivo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing arquivo field")
		return
	}
	defer file.Close()

	name := uuid.NewString() + filepath.Ext(header.Filename)
	path := filepath.Join(h.mediaDir, name)
	dst, err := os.Create(path)
	if err != nil {
		h.logger.Error("failed to store upload", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		h.logger.Error("failed to store upload", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	dst.Close()

	asVoice, _ := strconv.ParseBool(r.FormValue("voz"))
	media := service.MediaSend{
		FilePath:    path,
		MediaURL:    strings.TrimSuffix(h.mediaBaseURL, "/") + "/" + name,
		MediaKind:   mediaKindFor(header.Header.Get("Content-Type"), asVoice),
		Caption:     r.FormValue("legenda"),
		AsVoiceNote: asVoice,
	}

	msg, err := h.messenger.SendMedia(r.Context(), actorFrom(r), number, attendantID, media)
	if err != nil {
		os.Remove(path)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func mediaKindFor(contentType string, asVoice bool) string {
	switch {
	case asVoice:
		return "audio"
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
