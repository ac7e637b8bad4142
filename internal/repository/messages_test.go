package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banterhq/banter/internal/domain"
)

func seedMessage(t *testing.T, tdb *testDB, conv domain.ConversationID, sender, recipient domain.UserID, body string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ConversationID: conv,
		SenderID:       sender,
		RecipientID:    recipient,
		Body:           body,
		Type:           domain.TypePrivate,
		CreatedAt:      at,
	}
	require.NoError(t, tdb.Msgs.Insert(context.Background(), m))
	require.NotZero(t, m.ID)
	return m
}

func TestUndeliveredReturnsQueuedOldestFirst(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()
	conv, err := tdb.Convos.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := seedMessage(t, tdb, conv.ID, 1, 2, "older", base)
	newer := seedMessage(t, tdb, conv.ID, 1, 2, "newer", base.Add(time.Minute))
	pushed := seedMessage(t, tdb, conv.ID, 1, 2, "pushed", base.Add(2*time.Minute))
	require.NoError(t, tdb.Msgs.MarkDelivered(ctx, []domain.MessageID{pushed.ID}, base.Add(3*time.Minute)))
	seedMessage(t, tdb, conv.ID, 2, 1, "other direction", base)

	queued, err := tdb.Msgs.Undelivered(ctx, 2)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, older.ID, queued[0].ID)
	assert.Equal(t, newer.ID, queued[1].ID)
}

func TestMarkDeliveredDoesNotRestamp(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()
	conv, err := tdb.Convos.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := seedMessage(t, tdb, conv.ID, 1, 2, "hi", base)

	first := base.Add(time.Second)
	require.NoError(t, tdb.Msgs.MarkDelivered(ctx, []domain.MessageID{m.ID}, first))
	require.NoError(t, tdb.Msgs.MarkDelivered(ctx, []domain.MessageID{m.ID}, base.Add(time.Hour)))

	rows, err := tdb.Msgs.InConversation(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].DeliveredAt)
	assert.True(t, rows[0].DeliveredAt.Equal(first))
	assert.Equal(t, domain.StatusDelivered, rows[0].Status())
}

func TestMarkReadBackfillsMissingDelivery(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()
	conv, err := tdb.Convos.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delivered := seedMessage(t, tdb, conv.ID, 1, 2, "seen live", base)
	deliveredAt := base.Add(time.Second)
	require.NoError(t, tdb.Msgs.MarkDelivered(ctx, []domain.MessageID{delivered.ID}, deliveredAt))
	queued := seedMessage(t, tdb, conv.ID, 1, 2, "read straight from queue", base.Add(time.Minute))

	readAt := base.Add(time.Hour)
	unread, err := tdb.Msgs.UnreadInConversation(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	require.NoError(t, tdb.Msgs.MarkRead(ctx, []domain.MessageID{delivered.ID, queued.ID}, readAt))

	rows, err := tdb.Msgs.InConversation(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.DeliveredAt)
		require.NotNil(t, row.ReadAt)
		assert.True(t, row.ReadAt.Equal(readAt))
		assert.Equal(t, domain.StatusRead, row.Status())
		assert.False(t, row.ReadAt.Before(*row.DeliveredAt))
	}
	// The live-delivered row keeps its original delivery instant.
	assert.True(t, rows[0].DeliveredAt.Equal(deliveredAt))
	// The queued row was back-filled with the read instant.
	assert.True(t, rows[1].DeliveredAt.Equal(readAt))

	// Nothing left unread, and a repeat pass changes nothing.
	unread, err = tdb.Msgs.UnreadInConversation(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, unread)
	require.NoError(t, tdb.Msgs.MarkRead(ctx, []domain.MessageID{delivered.ID, queued.ID}, base.Add(2*time.Hour)))
	again, err := tdb.Msgs.InConversation(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.True(t, again[0].ReadAt.Equal(readAt))
}

func TestInConversationHonorsLimit(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()
	conv, err := tdb.Convos.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedMessage(t, tdb, conv.ID, 1, 2, "msg", base.Add(time.Duration(i)*time.Second))
	}

	rows, err := tdb.Msgs.InConversation(ctx, conv.ID, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestUserDirectoryRoundTrip(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()

	u := &domain.User{Username: "alice", DisplayName: "Alice", AvatarURL: "/avatars/a.png"}
	require.NoError(t, tdb.Users.Create(ctx, u))
	require.NotZero(t, u.ID)

	byName, err := tdb.Users.ByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byID, err := tdb.Users.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = tdb.Users.ByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}
