package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/config"
	"binmap/pkg/domain"
)

func setup(t *testing.T, maxLen int64) (*miniredis.Miniredis, *Publisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, "", maxLen)
}

func TestPublishAppendsEntry(t *testing.T) {
	mr, pub := setup(t, 0)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, pub.Publish(ctx, domain.LayoutEvent{Type: domain.EventLockAcquired, BlueprintID: "bp-1", OrgID: "org-1", UserID: "alice", At: at}))
	require.NoError(t, pub.Publish(ctx, domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: "bp-1", OrgID: "org-1", UserID: "alice", At: at}))

	entries, err := mr.Stream(DefaultStream)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Values, "lock.acquired")

	recent, err := pub.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.EventLayoutChanged, recent[0].Type)
	assert.Equal(t, at, recent[1].At)
}

func TestPublishTrimsStream(t *testing.T) {
	_, pub := setup(t, 2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Publish(ctx, domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: "bp-1"}))
	}
	recent, err := pub.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestPublishFailsWhenServerGone(t *testing.T) {
	mr, pub := setup(t, 0)
	mr.Close()
	err := pub.Publish(context.Background(), domain.LayoutEvent{Type: domain.EventLockReleased})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xadd")
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	pub, err := Dial(context.Background(), config.RedisConfig{Addr: mr.Addr(), Stream: "custom"})
	require.NoError(t, err)
	defer pub.Close()
	assert.Equal(t, "custom", pub.Stream())

	mr.Close()
	_, err = Dial(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.Error(t, err)
}
