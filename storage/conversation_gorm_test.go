package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/conversation"
)

func TestConversationRepository_GetOrOpenIsIdempotentPerContact(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	first, err := repo.GetOrOpen(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Equal(t, conversation.StatusOpen, first.Status)

	second, err := repo.GetOrOpen(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestConversationRepository_TouchIncomingIncrementsUnread(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	conv, err := repo.GetOrOpen(ctx, "t1", "c1")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.TouchIncoming(ctx, "t1", conv.ID, "hello", now))
	require.NoError(t, repo.TouchIncoming(ctx, "t1", conv.ID, "hello again", now))

	updated, err := repo.Get(ctx, "t1", conv.ID)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Unread)
	require.Equal(t, "hello again", updated.LastMessage)
}

func TestConversationRepository_TouchOutgoingDoesNotTouchUnread(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	conv, err := repo.GetOrOpen(ctx, "t1", "c1")
	require.NoError(t, err)
	require.NoError(t, repo.TouchIncoming(ctx, "t1", conv.ID, "hi", time.Now().UTC()))
	require.NoError(t, repo.TouchOutgoing(ctx, "t1", conv.ID, "reply", time.Now().UTC()))

	updated, err := repo.Get(ctx, "t1", conv.ID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.Unread)
	require.Equal(t, "reply", updated.LastMessage)
}

func TestConversationRepository_MarkReadZeroesUnread(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	conv, err := repo.GetOrOpen(ctx, "t1", "c1")
	require.NoError(t, err)
	require.NoError(t, repo.TouchIncoming(ctx, "t1", conv.ID, "hi", time.Now().UTC()))
	require.NoError(t, repo.MarkRead(ctx, "t1", conv.ID, nil))

	updated, err := repo.Get(ctx, "t1", conv.ID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.Unread)
}

func TestConversationRepository_AttributeToBroadcastOnlySetsOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	conv, err := repo.GetOrOpen(ctx, "t1", "c1")
	require.NoError(t, err)

	require.NoError(t, repo.AttributeToBroadcast(ctx, "t1", conv.ID, "b1"))
	require.NoError(t, repo.AttributeToBroadcast(ctx, "t1", conv.ID, "b2"))

	updated, err := repo.Get(ctx, "t1", conv.ID)
	require.NoError(t, err)
	require.Equal(t, "b1", updated.BroadcastID)
}

func TestConversationRepository_ListOrdersByLastActivityDescending(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	older, err := repo.GetOrOpen(ctx, "t1", "c-old")
	require.NoError(t, err)
	newer, err := repo.GetOrOpen(ctx, "t1", "c-new")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.TouchOutgoing(ctx, "t1", older.ID, "old", now.Add(-time.Hour)))
	require.NoError(t, repo.TouchOutgoing(ctx, "t1", newer.ID, "new", now))

	list, err := repo.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.ID, list[0].ID)
	require.Equal(t, older.ID, list[1].ID)
}
