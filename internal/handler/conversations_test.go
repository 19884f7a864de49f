package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/service"
	"github.com/zapdesk/zapdesk/internal/store"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

type handlerFixture struct {
	router        *chi.Mux
	conversations *store.ConversationStore
	messages      *store.MessageStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	db, err := store.Open("sqlite", filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)

	conversations := store.NewConversationStore(db)
	messages := store.NewMessageStore(db)
	accounts := store.NewAccountStore(db)
	svc := service.NewConversationService(conversations, messages, accounts, nil, logger.NewNop())
	h := NewConversationHandler(svc, logger.NewNop())

	r := chi.NewRouter()
	r.Get("/api/conversas", h.List)
	r.Get("/api/mensagens/{id}", h.Messages)
	r.Route("/api/conversa/{id}", func(r chi.Router) {
		r.Delete("/", h.Delete)
		r.Put("/status", h.UpdateStatus)
		r.Patch("/fixar", h.Pin)
		r.Delete("/limpar", h.PurgeMessages)
	})

	return &handlerFixture{router: r, conversations: conversations, messages: messages}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestListConversationsEmpty(t *testing.T) {
	f := newHandlerFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/conversas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	require.JSONEq(t, "[]", string(env.Data))
}

func TestListConversationsShape(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	conv, err := f.conversations.Resolve(ctx, "5511999996000", nil)
	require.NoError(t, err)
	id := "l-1"
	_, err = f.messages.Insert(ctx, &model.Message{
		ConversationID: conv.ID, SenderClass: model.SenderCustomer,
		Content: "oi", ExternalID: &id, Kind: model.KindMessage, SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec, env := f.do(t, http.MethodGet, "/api/conversas", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []model.ConversationListRow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	require.Equal(t, model.StatusWaiting, rows[0].Status)
	require.Equal(t, 1, rows[0].UnreadCount)
	require.NotNil(t, rows[0].LastMessage)
}

func TestUpdateStatusValidation(t *testing.T) {
	f := newHandlerFixture(t)
	conv, err := f.conversations.Resolve(context.Background(), "5511999996001", nil)
	require.NoError(t, err)

	rec, env := f.do(t, http.MethodPut, fmt.Sprintf("/api/conversa/%d/status", conv.ID), map[string]string{"status": "aguardando"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, env.Success)
	require.NotEmpty(t, env.Error)

	rec, _ = f.do(t, http.MethodPut, fmt.Sprintf("/api/conversa/%d/status", conv.ID), map[string]string{"status": "closed"})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.conversations.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusClosed, got.Status)
}

func TestUpdateStatusUnknownConversation(t *testing.T) {
	f := newHandlerFixture(t)

	rec, env := f.do(t, http.MethodPut, "/api/conversa/999/status", map[string]string{"status": "closed"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, env.Success)
}

func TestPinConversation(t *testing.T) {
	f := newHandlerFixture(t)
	conv, err := f.conversations.Resolve(context.Background(), "5511999996002", nil)
	require.NoError(t, err)

	rec, _ := f.do(t, http.MethodPatch, fmt.Sprintf("/api/conversa/%d/fixar", conv.ID), map[string]bool{"fixada": true})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.conversations.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	require.True(t, got.Pinned)
}

func TestMessagesInvalidID(t *testing.T) {
	f := newHandlerFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/mensagens/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, env.Success)
}

func TestPurgeAndDelete(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	conv, err := f.conversations.Resolve(ctx, "5511999996003", nil)
	require.NoError(t, err)
	id := "p-1"
	_, err = f.messages.Insert(ctx, &model.Message{
		ConversationID: conv.ID, SenderClass: model.SenderCustomer,
		Content: "oi", ExternalID: &id, Kind: model.KindMessage, SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec, _ := f.do(t, http.MethodDelete, fmt.Sprintf("/api/conversa/%d/limpar", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	count, err := f.messages.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	rec, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/conversa/%d", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = f.conversations.Get(ctx, conv.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
