package edge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/service"
	redisstore "xinicimail/backend/internal/storage/redis"
)

func newTestHandler(t *testing.T, maxBytes int64) (*Handler, *redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisstore.NewStore(redisstore.NewClient(config.RedisConfig{Address: mr.Addr()}), 0, nil)
	t.Cleanup(func() { _ = store.Close() })
	return NewHandler(service.NewMessageService(store, nil, nil), maxBytes, nil, nil), store, mr
}

func TestHandler_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("原始文本作为正文保存", func(t *testing.T) {
		h, store, mr := newTestHandler(t, 0)
		raw := "From: alice@example.com\r\nSubject: Hi\r\n\r\nTest"

		msg, err := h.Deliver(ctx, InboundEvent{
			To:      "User1@Domain.com",
			From:    "alice@example.com",
			Subject: "Hi",
			Raw:     strings.NewReader(raw),
		})
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, mr.TTL("email:domain.com:user1:"+msg.ID))

		id, _ := domain.NewIdentity("user1", "domain.com")
		got, err := store.Get(ctx, id, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, raw, got.Body)
		assert.Equal(t, "Hi", got.Subject)
		assert.Equal(t, "alice@example.com", got.From)

		list, err := store.List(ctx, id)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Empty(t, list[0].Body)
	})

	t.Run("缺失主题与正文时使用占位值", func(t *testing.T) {
		h, _, _ := newTestHandler(t, 0)
		msg, err := h.Deliver(ctx, InboundEvent{To: "user1@domain.com"})
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultSubject, msg.Subject)
		assert.Equal(t, domain.DefaultBody, msg.Body)
		assert.Equal(t, domain.UnknownSender, msg.From)
	})

	t.Run("收件地址不合法", func(t *testing.T) {
		h, _, _ := newTestHandler(t, 0)
		_, err := h.Deliver(ctx, InboundEvent{To: "not-an-address", Raw: strings.NewReader("x")})
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	})

	t.Run("超过大小上限", func(t *testing.T) {
		h, _, _ := newTestHandler(t, 4)
		_, err := h.Deliver(ctx, InboundEvent{To: "user1@domain.com", Raw: strings.NewReader("too large")})
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("存储不可达", func(t *testing.T) {
		h, _, mr := newTestHandler(t, 0)
		mr.Close()
		_, err := h.Deliver(ctx, InboundEvent{To: "user1@domain.com", Raw: strings.NewReader("x")})
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})
}
