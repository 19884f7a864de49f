package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/service"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

// AuthHandler handles login and account registration.
type AuthHandler struct {
	accounts *service.AccountService
	logger   *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accounts *service.AccountService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: log}
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Register handles POST /api/cadastro
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acc, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logger.Info("account registered",
		zap.Uint("account_id", acc.ID),
		zap.Uint("attendant_id", acc.AttendantID))
	writeJSON(w, http.StatusCreated, acc)
}
