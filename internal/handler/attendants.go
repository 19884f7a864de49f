package handler

import (
	"encoding/json"
	"net/http"

	"github.com/zapdesk/zapdesk/internal/service"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

// AttendantHandler handles attendant directory endpoints.
type AttendantHandler struct {
	accounts *service.AccountService
	logger   *logger.Logger
}

// NewAttendantHandler creates a new attendant handler.
func NewAttendantHandler(accounts *service.AccountService, log *logger.Logger) *AttendantHandler {
	return &AttendantHandler{accounts: accounts, logger: log}
}

// List handles GET /api/atendentes
func (h *AttendantHandler) List(w http.ResponseWriter, r *http.Request) {
	attendants, err := h.accounts.ListAttendants(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attendants)
}

// Create handles POST /api/atendentes
func (h *AttendantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"nome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	att, err := h.accounts.CreateAttendant(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}
