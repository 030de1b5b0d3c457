package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/mailparse"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/storage/memory"
)

// MockStore 模拟存储接口
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Put(ctx context.Context, id domain.MailboxIdentity, msg *domain.Message) error {
	args := m.Called(ctx, id, msg)
	return args.Error(0)
}

func (m *MockStore) List(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, id, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockStore) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error { return nil }

type staticIngestion bool

func (s staticIngestion) Active() bool { return bool(s) }

func identity(t *testing.T, login, dom string) domain.MailboxIdentity {
	t.Helper()
	id, err := domain.NewIdentity(login, dom)
	require.NoError(t, err)
	return id
}

func TestMessageService_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("补齐默认值并生成ID", func(t *testing.T) {
		store := memory.NewStore(0, nil)
		svc := NewMessageService(store, nil, nil)
		id := identity(t, "user1", "domain.com")

		msg, err := svc.Deliver(ctx, id, domain.Message{})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, domain.DefaultSubject, msg.Subject)
		assert.Equal(t, domain.DefaultBody, msg.Body)
		assert.Equal(t, domain.UnknownSender, msg.From)
		assert.False(t, msg.ReceivedAt.IsZero())

		got, err := store.Get(ctx, id, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, *msg, *got)
	})

	t.Run("存储失败返回包装错误", func(t *testing.T) {
		store := new(MockStore)
		store.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(domain.ErrBackendUnavailable)
		svc := NewMessageService(store, nil, monitoring.NewMetrics(nil))

		msg, err := svc.Deliver(ctx, identity(t, "user1", "domain.com"), domain.Message{Subject: "s"})
		assert.Nil(t, msg)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		store.AssertExpectations(t)
	})
}

func TestMessageService_DeliverAll(t *testing.T) {
	ctx := context.Background()
	user1 := identity(t, "user1", "domain.com")
	user2 := identity(t, "user2", "domain.com")

	res := &mailparse.Result{
		Deliveries: []mailparse.Delivery{
			{Identity: user1, Message: domain.Message{Subject: "Hi", Body: "Test"}},
			{Identity: user2, Message: domain.Message{Subject: "Hi", Body: "Test"}},
		},
		Skipped: []string{"bad"},
	}

	t.Run("全部收件人入库", func(t *testing.T) {
		store := memory.NewStore(0, nil)
		svc := NewMessageService(store, nil, nil)

		stored, err := svc.DeliverAll(ctx, res)
		require.NoError(t, err)
		assert.Equal(t, 2, stored)
		assert.Equal(t, 1, store.Len(user1))
		assert.Equal(t, 1, store.Len(user2))
	})

	t.Run("单个收件人失败不影响其他收件人", func(t *testing.T) {
		store := new(MockStore)
		failure := errors.New("disk full")
		store.On("Put", mock.Anything, user1, mock.Anything).Return(failure)
		store.On("Put", mock.Anything, user2, mock.Anything).Return(nil)
		svc := NewMessageService(store, nil, nil)

		stored, err := svc.DeliverAll(ctx, res)
		assert.Equal(t, 1, stored)
		assert.ErrorIs(t, err, failure)
		store.AssertNumberOfCalls(t, "Put", 2)
	})
}

func TestMailboxService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(0, nil)
	stats := monitoring.NewStats(nil)
	id := identity(t, "user1", "domain.com")

	msg := &domain.Message{Subject: "Hi", Body: "Test", ReceivedAt: time.Now().UTC()}
	require.NoError(t, store.Put(ctx, id, msg))
	stats.RecordDelivery(msg.ReceivedAt)

	svc := NewMailboxService(store, stats, domain.BackendMemory, nil)

	t.Run("查询大小写与空白不敏感", func(t *testing.T) {
		list, err := svc.List(ctx, " User1 ", "DOMAIN.com")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Hi", list[0].Subject)
		assert.Equal(t, "Test", list[0].Body)
	})

	t.Run("未使用的邮箱返回空列表", func(t *testing.T) {
		list, err := svc.List(ctx, "nobody", "domain.com")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("缺少参数返回身份错误", func(t *testing.T) {
		_, err := svc.List(ctx, "", "domain.com")
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

		_, err = svc.Read(ctx, "user1", "", msg.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	})

	t.Run("读取邮件", func(t *testing.T) {
		got, err := svc.Read(ctx, "user1", "domain.com", msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "Test", got.Body)

		_, err = svc.Read(ctx, "user1", "domain.com", "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = svc.Read(ctx, "user1", "domain.com", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("状态包含统计与运行时信息", func(t *testing.T) {
		status := svc.Status(ctx)
		assert.Equal(t, StatusOnline, status.Status)
		assert.Equal(t, domain.BackendMemory, status.Backend)
		assert.Equal(t, domain.IngestionActive, status.Ingestion)
		assert.Equal(t, int64(1), status.Stats.EmailsReceived)
		assert.NotNil(t, status.Stats.LastEmailAt)
		assert.NotEmpty(t, status.RuntimeVersion)
	})

	t.Run("收件通道不可用时状态降级", func(t *testing.T) {
		svc := NewMailboxService(store, stats, domain.BackendMemory, staticIngestion(false))
		status := svc.Status(ctx)
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, domain.IngestionDisabled, status.Ingestion)
	})

	t.Run("存储不可达时状态降级", func(t *testing.T) {
		broken := new(MockStore)
		broken.On("Health", mock.Anything).Return(domain.ErrBackendUnavailable)
		svc := NewMailboxService(broken, nil, domain.BackendEdge, nil)

		status := svc.Status(ctx)
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, domain.IngestionActive, status.Ingestion)
	})
}
