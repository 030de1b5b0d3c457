package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
)

// stubProvider 记录调用次数，状态由 down 控制
type stubProvider struct {
	name   string
	down   atomic.Bool
	probes atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) ListMessages(_ context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	return []domain.Message{{ID: s.name + ":" + id.Login}}, nil
}

func (s *stubProvider) ReadMessage(_ context.Context, _ domain.MailboxIdentity, messageID string) (*domain.Message, error) {
	return &domain.Message{ID: messageID, Body: s.name}, nil
}

func (s *stubProvider) Status(context.Context) (*domain.ServerStatus, error) {
	s.probes.Add(1)
	if s.down.Load() {
		return nil, domain.ErrBackendUnavailable
	}
	return &domain.ServerStatus{Status: domain.StatusOnline, Backend: s.name}, nil
}

func newTestResolver() (*Resolver, *stubProvider, *stubProvider) {
	public := &stubProvider{name: "public"}
	self := &stubProvider{name: "self"}
	r := newResolver(public, self, "Your-Domain.com", []string{"1secmail.com", "1secmail.net", "your-domain.com", ""}, zap.NewNop())
	return r, public, self
}

func TestResolver_For(t *testing.T) {
	r, public, self := newTestResolver()

	t.Run("域名列表", func(t *testing.T) {
		assert.Equal(t, []string{"your-domain.com", "1secmail.com", "1secmail.net"}, r.Domains())
		assert.Equal(t, "your-domain.com", r.CustomDomain())
	})

	t.Run("自定义域名走自建后端", func(t *testing.T) {
		p, err := r.For("YOUR-DOMAIN.COM")
		require.NoError(t, err)
		assert.Same(t, self, p)
	})

	t.Run("公共域名走公共服务", func(t *testing.T) {
		p, err := r.For("1secmail.net")
		require.NoError(t, err)
		assert.Same(t, public, p)
	})

	t.Run("不支持的域名", func(t *testing.T) {
		_, err := r.For("example.org")
		assert.True(t, errors.Is(err, domain.ErrInvalidIdentity))
	})

	t.Run("列表与读取按域名分发", func(t *testing.T) {
		ctx := context.Background()
		list, err := r.ListMessages(ctx, domain.MailboxIdentity{Login: "abc", Domain: "1secmail.com"})
		require.NoError(t, err)
		assert.Equal(t, "public:abc", list[0].ID)

		msg, err := r.ReadMessage(ctx, domain.MailboxIdentity{Login: "abc", Domain: "your-domain.com"}, "42")
		require.NoError(t, err)
		assert.Equal(t, "self", msg.Body)
	})
}

func TestResolver_Probe(t *testing.T) {
	ctx := context.Background()
	r, _, self := newTestResolver()
	assert.True(t, r.Available())

	t.Run("探测失败后停用自定义域名", func(t *testing.T) {
		self.down.Store(true)
		_, err := r.Probe(ctx)
		require.Error(t, err)
		assert.False(t, r.Available())

		_, err = r.For("your-domain.com")
		assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))

		// 公共域名不受影响
		_, err = r.For("1secmail.com")
		assert.NoError(t, err)
	})

	t.Run("恢复后重新启用", func(t *testing.T) {
		self.down.Store(false)
		status, err := r.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOnline, status.Status)
		assert.True(t, r.Available())
	})
}

func TestResolver_ProbeLogsTransitions(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	self := &stubProvider{name: "self"}
	r := newResolver(&stubProvider{name: "public"}, self, "your-domain.com", []string{"your-domain.com"}, zap.New(core))

	self.down.Store(true)
	_, _ = r.Probe(ctx)
	_, _ = r.Probe(ctx)
	self.down.Store(false)
	_, _ = r.Probe(ctx)

	// 只在状态切换时记录
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "self-hosted backend unavailable, custom domain disabled", entries[0].Message)
	assert.Equal(t, "your-domain.com", entries[0].ContextMap()["domain"])
	assert.Equal(t, "self-hosted backend recovered", entries[1].Message)
}

func TestResolver_WatchStatus(t *testing.T) {
	r, _, self := newTestResolver()
	self.down.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.WatchStatus(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return !r.Available() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchStatus 未在 ctx 结束后退出")
	}
	assert.GreaterOrEqual(t, self.probes.Load(), int32(1))
}

func TestNewResolver_Backend(t *testing.T) {
	cfg := config.ClientConfig{
		PublicURL:     "https://www.1secmail.com/api/v1/",
		SelfHostedURL: "http://localhost:3001",
		CustomDomain:  "your-domain.com",
		Domains:       []string{"1secmail.com"},
	}

	r := NewResolver(cfg, nil, nil)
	p, err := r.For("your-domain.com")
	require.NoError(t, err)
	assert.Equal(t, SelfHostedName, p.Name())

	cfg.Backend = config.BackendEdge
	r = NewResolver(cfg, nil, nil)
	p, err = r.For("your-domain.com")
	require.NoError(t, err)
	assert.Equal(t, EdgeName, p.Name())

	p, err = r.For("1secmail.com")
	require.NoError(t, err)
	assert.Equal(t, PublicName, p.Name())
}
