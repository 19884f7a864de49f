package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/whatsapp"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

// WhatsAppHandler exposes transport session lifecycle endpoints.
type WhatsAppHandler struct {
	manager *whatsapp.Manager
	logger  *logger.Logger
}

// NewWhatsAppHandler creates a new whatsapp handler.
func NewWhatsAppHandler(manager *whatsapp.Manager, log *logger.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{manager: manager, logger: log}
}

// Status handles GET /api/whatsapp/status
func (h *WhatsAppHandler) Status(w http.ResponseWriter, r *http.Request) {
	state, _ := h.manager.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":     state.String(),
		"connected": state == whatsapp.StateConnected,
	})
}

// QR handles GET /api/whatsapp/qr
func (h *WhatsAppHandler) QR(w http.ResponseWriter, r *http.Request) {
	state, qr := h.manager.Status()
	if state == whatsapp.StateConnected {
		writeJSON(w, http.StatusOK, map[string]interface{}{"state": state.String()})
		return
	}
	if qr == "" {
		writeError(w, http.StatusNotFound, "no pairing code available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": state.String(),
		"qr":    qr,
	})
}

// Reconnect handles POST /api/whatsapp/reconnect
func (h *WhatsAppHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Reconnect(r.Context()); err != nil {
		h.logger.Error("reconnect failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "reconnect failed")
		return
	}
	state, _ := h.manager.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state.String()})
}
