package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/mailparse"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/storage"
)

// MessageService 封装邮件入库逻辑，两个收件入口共用。
type MessageService struct {
	store   storage.Store
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewMessageService 创建邮件业务服务，metrics 可以为 nil。
func NewMessageService(store storage.Store, logger *zap.Logger, metrics *monitoring.Metrics) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{store: store, logger: logger, metrics: metrics}
}

// Deliver 为邮件补齐默认值后写入 id 对应的邮箱，返回入库后的邮件（含生成的 ID）。
func (s *MessageService) Deliver(ctx context.Context, id domain.MailboxIdentity, msg domain.Message) (*domain.Message, error) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	msg.ApplyDefaults()

	if err := s.store.Put(ctx, id, &msg); err != nil {
		s.metrics.RecordRejected(monitoring.RejectStorage)
		s.logger.Error("store message failed",
			zap.String("mailbox", id.Address()),
			zap.Error(err))
		return nil, fmt.Errorf("store message for %s: %w", id.Address(), err)
	}

	s.logger.Info("message stored",
		zap.String("mailbox", id.Address()),
		zap.String("message_id", msg.ID),
		zap.String("from", msg.From),
		zap.String("subject", msg.Subject))
	return &msg, nil
}

// DeliverAll 投递一次解析结果中的全部邮件。
//
// 单个收件人写入失败不会中断其余收件人，所有失败合并后返回；
// 被跳过的收件人只记录日志。
func (s *MessageService) DeliverAll(ctx context.Context, res *mailparse.Result) (int, error) {
	for _, rcpt := range res.Skipped {
		s.metrics.RecordSkippedRecipient()
		s.logger.Warn("recipient skipped", zap.String("recipient", rcpt))
	}

	var (
		stored int
		errs   []error
	)
	for _, d := range res.Deliveries {
		if _, err := s.Deliver(ctx, d.Identity, d.Message); err != nil {
			errs = append(errs, err)
			continue
		}
		stored++
	}
	return stored, errors.Join(errs...)
}
