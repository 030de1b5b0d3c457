package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xinicimail/backend/internal/domain"
)

// fakePublicAPI 模拟 1secmail 风格的公共接口
func fakePublicAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("action") {
		case "getDomainList":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`["1secmail.com","1secmail.net"]`))
		case "getMessages":
			w.Header().Set("Content-Type", "application/json")
			if q.Get("login") != "abc" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[
				{"id": 639, "from": "Alice <alice@example.com>", "subject": "Hello", "date": "2024-05-01 10:00:00"},
				{"id": 640, "from": "bob@example.com", "subject": "", "date": "2024-05-01 09:00:00"}
			]`))
		case "readMessage":
			if q.Get("id") != "639" {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("Message not found"))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": 639, "from": "Alice <alice@example.com>", "subject": "Hello",
				"date": "2024-05-01 10:00:00", "body": "<p>Hi</p>", "textBody": "Hi there\n", "htmlBody": "<p>Hi</p>"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPublicProvider(t *testing.T) {
	srv := fakePublicAPI(t)
	p := NewPublicProvider(srv.URL+"/api/v1/", nil)
	ctx := context.Background()
	id := domain.MailboxIdentity{Login: "abc", Domain: "1secmail.com"}

	t.Run("列表转换为摘要", func(t *testing.T) {
		messages, err := p.ListMessages(ctx, id)
		require.NoError(t, err)
		require.Len(t, messages, 2)

		assert.Equal(t, "639", messages[0].ID)
		assert.Equal(t, "Alice", messages[0].From)
		assert.Equal(t, "Hello", messages[0].Subject)
		assert.Empty(t, messages[0].Body)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), messages[0].ReceivedAt)

		assert.Equal(t, "bob@example.com", messages[1].From)
		assert.Equal(t, domain.DefaultSubject, messages[1].Subject)
	})

	t.Run("空邮箱", func(t *testing.T) {
		messages, err := p.ListMessages(ctx, domain.MailboxIdentity{Login: "nobody", Domain: "1secmail.com"})
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("读取优先使用纯文本正文", func(t *testing.T) {
		msg, err := p.ReadMessage(ctx, id, "639")
		require.NoError(t, err)
		assert.Equal(t, "Hi there", msg.Body)
		assert.Equal(t, "alice@example.com", msg.SenderAddress)
	})

	t.Run("非 JSON 响应视为不存在", func(t *testing.T) {
		_, err := p.ReadMessage(ctx, id, "1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("非数字 ID", func(t *testing.T) {
		_, err := p.ReadMessage(ctx, id, "abc")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("状态探测", func(t *testing.T) {
		status, err := p.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOnline, status.Status)
		assert.Equal(t, PublicName, p.Name())
	})
}

func TestPublicProvider_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPublicProvider(srv.URL, nil)
	_, err := p.ListMessages(context.Background(), domain.MailboxIdentity{Login: "abc", Domain: "1secmail.com"})
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
}

func TestSplitSender(t *testing.T) {
	tests := []struct {
		in, name, addr string
	}{
		{"Alice <alice@example.com>", "Alice", "alice@example.com"},
		{"alice@example.com", "alice@example.com", "alice@example.com"},
		{"Broken <not an address", "Broken", "Broken <not an address"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, addr := splitSender(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.addr, addr)
		})
	}
}

func TestNewAddress(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id, err := NewAddress("Your-Domain.com")
		require.NoError(t, err)
		assert.Len(t, id.Login, LoginLength)
		assert.Regexp(t, `^[0-9a-z]{8}$`, id.Login)
		assert.Equal(t, "your-domain.com", id.Domain)
		seen[id.Login] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)

	_, err := NewAddress("")
	assert.True(t, errors.Is(err, domain.ErrInvalidIdentity))
}
