package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/flow"
	"github.com/wa-platform/core/infrastructure/valkey"
)

func newTestValkeyClient(t *testing.T) *valkey.Client {
	t.Helper()
	vk, err := valkey.NewClient(valkey.Config{Address: "localhost:6379", KeyPrefix: "wa-platform-test"})
	if err != nil {
		t.Skip("no local valkey/redis reachable at localhost:6379")
	}
	t.Cleanup(vk.Close)
	return vk
}

func TestValkeySessionStore_SaveGetDeleteRoundTrip(t *testing.T) {
	vk := newTestValkeyClient(t)
	store := NewValkeySessionStore(vk)
	ctx := context.Background()

	sess := &flow.Session{
		TenantID: "t1", ContactID: "vk-c1", FlowID: "f1",
		CurrentNodeID: "n1", Variables: flow.Bag{"name": "Ada"},
	}
	require.NoError(t, store.Save(ctx, sess))
	t.Cleanup(func() { _ = store.Delete(context.Background(), "t1", "vk-c1") })

	fetched, ok, err := store.Get(ctx, "t1", "vk-c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "n1", fetched.CurrentNodeID)
	require.Equal(t, "Ada", fetched.Variables["name"])

	require.NoError(t, store.Delete(ctx, "t1", "vk-c1"))
	_, ok, err = store.Get(ctx, "t1", "vk-c1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValkeySessionStore_WithLockSerializesAcrossAcquisitions(t *testing.T) {
	vk := newTestValkeyClient(t)
	store := NewValkeySessionStore(vk)
	ctx := context.Background()

	order := make(chan int, 2)
	done := make(chan struct{})

	go func() {
		_ = store.WithLock(ctx, "t1", "vk-lock", func(ctx context.Context) error {
			order <- 1
			close(done)
			return nil
		})
	}()

	<-done
	require.NoError(t, store.WithLock(ctx, "t1", "vk-lock", func(ctx context.Context) error {
		order <- 2
		return nil
	}))

	require.Equal(t, 1, <-order)
	require.Equal(t, 2, <-order)
}
