package storage

import (
	"context"
	"time"

	"xinicimail/backend/internal/domain"
)

// Store 定义邮箱存储能力，两种后端（容量受限的内存列表、带 TTL 的键值存储）
// 都实现该接口，调用方不应依赖具体是哪一种。
type Store interface {
	// Put 写入一封邮件；msg.ID 为空时由存储生成。
	Put(ctx context.Context, id domain.MailboxIdentity, msg *domain.Message) error
	// List 返回邮箱内的邮件，未使用过的邮箱返回空切片而不是错误。
	List(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error)
	// Get 读取单封邮件，不存在或已过期时返回 domain.ErrNotFound。
	Get(ctx context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error)

	// 工具方法
	Health(ctx context.Context) error
	Close() error
}

// Recorder 接收存储层的入库与淘汰事件，用于进程统计与指标。
type Recorder interface {
	RecordDelivery(receivedAt time.Time)
	RecordEviction()
}

type nopRecorder struct{}

func (nopRecorder) RecordDelivery(time.Time) {}
func (nopRecorder) RecordEviction()          {}

// OrNop 在 r 为 nil 时返回空实现。
func OrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
