package service

import (
	"context"
	"runtime"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/storage"
)

// 服务状态
const (
	StatusOnline   = domain.StatusOnline
	StatusDegraded = domain.StatusDegraded
)

// IngestionState 报告收件通道是否可用。
type IngestionState interface {
	Active() bool
}

// MailboxService 提供查询接口使用的邮箱读取能力。
type MailboxService struct {
	store     storage.Store
	stats     *monitoring.Stats
	backend   string
	ingestion IngestionState
}

// NewMailboxService 创建邮箱查询服务。ingestion 为 nil 时视为收件通道始终可用。
func NewMailboxService(store storage.Store, stats *monitoring.Stats, backend string, ingestion IngestionState) *MailboxService {
	if stats == nil {
		stats = monitoring.NewStats(nil)
	}
	return &MailboxService{
		store:     store,
		stats:     stats,
		backend:   backend,
		ingestion: ingestion,
	}
}

// List 返回邮箱内的邮件，最新的在前；未使用过的邮箱返回空列表。
func (s *MailboxService) List(ctx context.Context, login, domainName string) ([]domain.Message, error) {
	id, err := domain.NewIdentity(login, domainName)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, id)
}

// Read 读取单封邮件，不存在或已过期时返回 domain.ErrNotFound。
func (s *MailboxService) Read(ctx context.Context, login, domainName, messageID string) (*domain.Message, error) {
	id, err := domain.NewIdentity(login, domainName)
	if err != nil {
		return nil, err
	}
	if messageID == "" {
		return nil, domain.ErrNotFound
	}
	return s.store.Get(ctx, id, messageID)
}

// Status 返回服务状态与收件统计。
func (s *MailboxService) Status(ctx context.Context) domain.ServerStatus {
	status := domain.ServerStatus{
		Status:         StatusOnline,
		Stats:          s.stats.Snapshot(),
		RuntimeVersion: runtime.Version(),
		Backend:        s.backend,
		Ingestion:      domain.IngestionActive,
	}
	if s.ingestion != nil && !s.ingestion.Active() {
		status.Ingestion = domain.IngestionDisabled
		status.Status = StatusDegraded
	}
	if err := s.store.Health(ctx); err != nil {
		status.Status = StatusDegraded
	}
	return status
}
