package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)
	return db
}

func strPtr(s string) *string { return &s }

func TestConversationResolveUpsertsSingleRow(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationStore(db)
	ctx := context.Background()

	first, err := convs.Resolve(ctx, "5511999990001", nil)
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.Equal(t, model.StatusWaiting, first.Status)
	require.Nil(t, first.CustomerName)

	second, err := convs.Resolve(ctx, "5511999990001", strPtr("Maria"))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.CustomerName)
	require.Equal(t, "Maria", *second.CustomerName)

	var count int64
	require.NoError(t, db.Model(&model.Conversation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestConversationResolveKeepsKnownName(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationStore(db)
	ctx := context.Background()

	_, err := convs.Resolve(ctx, "5511999990002", strPtr("Pedro"))
	require.NoError(t, err)

	// A later message without a push name must not erase the stored name.
	conv, err := convs.Resolve(ctx, "5511999990002", nil)
	require.NoError(t, err)
	require.NotNil(t, conv.CustomerName)
	require.Equal(t, "Pedro", *conv.CustomerName)
}

func TestConversationListOrderingAndPin(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationStore(db)
	msgs := NewMessageStore(db)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	older, err := convs.Resolve(ctx, "5511999990010", nil)
	require.NoError(t, err)
	newer, err := convs.Resolve(ctx, "5511999990011", nil)
	require.NoError(t, err)
	pinned, err := convs.Resolve(ctx, "5511999990012", nil)
	require.NoError(t, err)

	insert := func(convID uint, id string, at time.Time) {
		_, err := msgs.Insert(ctx, &model.Message{
			ConversationID: convID,
			SenderClass:    model.SenderCustomer,
			Content:        "oi",
			ExternalID:     &id,
			Kind:           model.KindMessage,
			SentAt:         at,
		})
		require.NoError(t, err)
	}
	insert(older.ID, "m-old", base)
	insert(newer.ID, "m-new", base.Add(30*time.Minute))
	insert(pinned.ID, "m-pin", base.Add(10*time.Minute))

	require.NoError(t, convs.SetPinned(ctx, pinned.ID, true))

	rows, err := convs.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, pinned.ID, rows[0].ID)
	require.Equal(t, newer.ID, rows[1].ID)
	require.Equal(t, older.ID, rows[2].ID)
	require.NotNil(t, rows[1].LastMessage)
	require.Equal(t, "oi", *rows[1].LastMessage)
}

func TestConversationListUnreadProjection(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationStore(db)
	msgs := NewMessageStore(db)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	conv, err := convs.Resolve(ctx, "5511999990020", nil)
	require.NoError(t, err)

	attID := uint(1)
	require.NoError(t, db.Create(&model.Attendant{Name: "Alice", Active: true}).Error)

	insert := func(id string, class model.SenderClass, at time.Time) {
		m := &model.Message{
			ConversationID: conv.ID,
			SenderClass:    class,
			Content:        "x",
			ExternalID:     &id,
			Kind:           model.KindMessage,
			SentAt:         at,
		}
		if class == model.SenderAttendant {
			m.AttendantID = &attID
		}
		_, err := msgs.Insert(ctx, m)
		require.NoError(t, err)
	}

	insert("c1", model.SenderCustomer, base)
	insert("c2", model.SenderCustomer, base.Add(time.Minute))

	rows, err := convs.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, rows[0].UnreadCount)

	insert("a1", model.SenderAttendant, base.Add(2*time.Minute))
	rows, err = convs.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rows[0].UnreadCount)

	insert("c3", model.SenderCustomer, base.Add(3*time.Minute))
	rows, err = convs.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rows[0].UnreadCount)

	// An internal note counts as attendant activity: writing one means the
	// conversation has been looked at, so it clears the unread count too.
	_, err = msgs.Insert(ctx, &model.Message{
		ConversationID: conv.ID,
		SenderClass:    model.SenderAttendant,
		AttendantID:    &attID,
		Content:        "cliente quer segunda via do boleto",
		Kind:           model.KindNote,
		SentAt:         base.Add(4 * time.Minute),
	})
	require.NoError(t, err)
	rows, err = convs.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rows[0].UnreadCount)
}

func TestConversationUpdateStatusNotFound(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationStore(db)

	err := convs.UpdateStatus(context.Background(), 999, model.StatusClosed, nil, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConversationDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationStore(db)
	msgs := NewMessageStore(db)
	ctx := context.Background()

	conv, err := convs.Resolve(ctx, "5511999990030", nil)
	require.NoError(t, err)
	id := "del-1"
	_, err = msgs.Insert(ctx, &model.Message{
		ConversationID: conv.ID,
		SenderClass:    model.SenderCustomer,
		Content:        "oi",
		ExternalID:     &id,
		Kind:           model.KindMessage,
		SentAt:         time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, convs.Delete(ctx, conv.ID))

	_, err = convs.Get(ctx, conv.ID)
	require.ErrorIs(t, err, ErrNotFound)
	count, err := msgs.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestConversationPurgeKeepsConversation(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationStore(db)
	msgs := NewMessageStore(db)
	ctx := context.Background()

	conv, err := convs.Resolve(ctx, "5511999990031", nil)
	require.NoError(t, err)
	id := "purge-1"
	_, err = msgs.Insert(ctx, &model.Message{
		ConversationID: conv.ID,
		SenderClass:    model.SenderCustomer,
		Content:        "oi",
		ExternalID:     &id,
		Kind:           model.KindMessage,
		SentAt:         time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, msgs.Purge(ctx, conv.ID))

	got, err := convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, conv.ID, got.ID)
	count, err := msgs.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}
