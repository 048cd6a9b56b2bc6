package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/broadcast"
)

func TestNotificationRepository_CreateRejectsDuplicateExternalID(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	first, err := repo.Create(ctx, &broadcast.ScheduledNotification{
		TenantID: "t1", ExternalID: "ext-1", ContactID: "c1",
		Status: broadcast.NotificationPending, SendAt: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	dup, err := repo.Create(ctx, &broadcast.ScheduledNotification{
		TenantID: "t1", ExternalID: "ext-1", ContactID: "c1",
		Status: broadcast.NotificationPending, SendAt: time.Now().UTC().Add(2 * time.Hour),
	})
	require.ErrorIs(t, err, broadcast.ErrDuplicate)
	require.Equal(t, first.ID, dup.ID)
}

func TestNotificationRepository_CancelOnlyAffectsPending(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	n, err := repo.Create(ctx, &broadcast.ScheduledNotification{
		TenantID: "t1", ExternalID: "ext-1", ContactID: "c1",
		Status: broadcast.NotificationPending, SendAt: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	cancelled, err := repo.Cancel(ctx, "t1", n.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	cancelledAgain, err := repo.Cancel(ctx, "t1", n.ID)
	require.NoError(t, err)
	require.False(t, cancelledAgain, "cancelling an already-cancelled notification is a no-op")
}

func TestNotificationRepository_DueForSendOnlyReturnsPastPending(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	now := time.Now().UTC()
	due, err := repo.Create(ctx, &broadcast.ScheduledNotification{
		TenantID: "t1", ExternalID: "ext-due", ContactID: "c1",
		Status: broadcast.NotificationPending, SendAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &broadcast.ScheduledNotification{
		TenantID: "t1", ExternalID: "ext-future", ContactID: "c1",
		Status: broadcast.NotificationPending, SendAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	results, err := repo.DueForSend(ctx, now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, due.ID, results[0].ID)
}

func TestNotificationRepository_MarkSentAndMarkFailed(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	sent, err := repo.Create(ctx, &broadcast.ScheduledNotification{
		TenantID: "t1", ExternalID: "ext-sent", ContactID: "c1",
		Status: broadcast.NotificationPending, SendAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, "t1", sent.ID, time.Now().UTC()))

	fetched, err := repo.Get(ctx, "t1", sent.ID)
	require.NoError(t, err)
	require.Equal(t, broadcast.NotificationSent, fetched.Status)
	require.NotNil(t, fetched.SentAt)

	failed, err := repo.Create(ctx, &broadcast.ScheduledNotification{
		TenantID: "t1", ExternalID: "ext-failed", ContactID: "c1",
		Status: broadcast.NotificationPending, SendAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "t1", failed.ID, "provider rejected"))

	fetched, err = repo.Get(ctx, "t1", failed.ID)
	require.NoError(t, err)
	require.Equal(t, broadcast.NotificationFailed, fetched.Status)
	require.Equal(t, "provider rejected", fetched.FailedMsg)
}
