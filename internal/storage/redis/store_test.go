package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
)

type countingRecorder struct {
	deliveries atomic.Int64
}

func (r *countingRecorder) RecordDelivery(time.Time) { r.deliveries.Add(1) }
func (r *countingRecorder) RecordEviction()          {}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *countingRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := NewClient(config.RedisConfig{Address: mr.Addr()})
	rec := &countingRecorder{}
	store := NewStore(rdb, 0, rec)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr, rec
}

func mustIdentity(t *testing.T, login, dom string) domain.MailboxIdentity {
	t.Helper()
	id, err := domain.NewIdentity(login, dom)
	require.NoError(t, err)
	return id
}

func TestRedisStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store, mr, rec := newTestStore(t)
	id := mustIdentity(t, "user1", "domain.com")

	msg := &domain.Message{
		From:          "Alice",
		SenderAddress: "alice@example.com",
		Subject:       "Hi",
		Body:          "Test",
		ReceivedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, id, msg))
	require.NotEmpty(t, msg.ID)
	assert.Equal(t, int64(1), rec.deliveries.Load())

	t.Run("键格式与过期时间", func(t *testing.T) {
		key := "email:domain.com:user1:" + msg.ID
		assert.True(t, mr.Exists(key))
		assert.Equal(t, 24*time.Hour, mr.TTL(key))

		raw, err := mr.Get(key)
		require.NoError(t, err)
		var stored map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &stored))
		assert.Equal(t, "user1", stored["login"])
		assert.Equal(t, "domain.com", stored["domain"])
		assert.Equal(t, "Hi", stored["subject"])
	})

	t.Run("过期前读取内容一致", func(t *testing.T) {
		mr.FastForward(23 * time.Hour)
		got, err := store.Get(ctx, id, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "Alice", got.From)
		assert.Equal(t, "alice@example.com", got.SenderAddress)
		assert.Equal(t, "Hi", got.Subject)
		assert.Equal(t, "Test", got.Body)
		assert.True(t, msg.ReceivedAt.Equal(got.ReceivedAt))
	})

	t.Run("过期后返回不存在", func(t *testing.T) {
		mr.FastForward(2 * time.Hour)
		_, err := store.Get(ctx, id, msg.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		list, err := store.List(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestRedisStore_List(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	id := mustIdentity(t, "user1", "domain.com")
	other := mustIdentity(t, "user10", "domain.com")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(ctx, id, &domain.Message{
			ID:         fmt.Sprintf("m-%d", i),
			From:       "sender",
			Subject:    fmt.Sprintf("subject %d", i),
			Body:       "secret body",
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Put(ctx, other, &domain.Message{
		Subject: "not mine", Body: "x", ReceivedAt: base,
	}))

	t.Run("返回摘要并按时间倒序", func(t *testing.T) {
		list, err := store.List(ctx, id)
		require.NoError(t, err)
		require.Len(t, list, 5)
		for i, msg := range list {
			assert.Equal(t, fmt.Sprintf("m-%d", 4-i), msg.ID)
			assert.Empty(t, msg.Body)
			assert.Empty(t, msg.SenderAddress)
			assert.Equal(t, "sender", msg.From)
		}
	})

	t.Run("前缀不会匹配到其他邮箱", func(t *testing.T) {
		list, err := store.List(ctx, other)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "not mine", list[0].Subject)
	})

	t.Run("未使用的邮箱返回空列表", func(t *testing.T) {
		list, err := store.List(ctx, mustIdentity(t, "nobody", "domain.com"))
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("并发写入不会冲突", func(t *testing.T) {
		id := mustIdentity(t, "busy", "domain.com")
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			go func() {
				errs <- store.Put(ctx, id, &domain.Message{Subject: "s", Body: "b", ReceivedAt: time.Now()})
			}()
		}
		for i := 0; i < 20; i++ {
			require.NoError(t, <-errs)
		}
		list, err := store.List(ctx, id)
		require.NoError(t, err)
		assert.Len(t, list, 20)
	})
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewStore(rdb, time.Hour, nil)
	id := mustIdentity(t, "user1", "domain.com")

	mr.Close()

	err := store.Put(ctx, id, &domain.Message{Subject: "s"})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, err = store.List(ctx, id)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, err = store.Get(ctx, id, "missing")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, store.Health(ctx), domain.ErrBackendUnavailable)
}
