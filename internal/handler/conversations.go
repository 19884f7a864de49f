package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zapdesk/zapdesk/internal/middleware"
	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/service"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

// ConversationHandler handles conversation directory endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{service: svc, logger: log}
}

// List handles GET /api/conversas
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []model.ConversationListRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Messages handles GET /api/mensagens/{conversaId}
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.service.Messages(r.Context(), id, middleware.GetAccountID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.MessageView{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// UpdateStatus handles PUT /api/conversa/{id}/status
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.SetStatus(r.Context(), id, req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": req.Status})
}

// Pin handles PATCH /api/conversa/{id}/fixar
func (h *ConversationHandler) Pin(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.Pin(r.Context(), id, req.Pinned); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "fixada": req.Pinned})
}

// PurgeMessages handles DELETE /api/conversa/{id}/limpar
func (h *ConversationHandler) PurgeMessages(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Purge(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id})
}

// Delete handles DELETE /api/conversa/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id})
}
