// Package edge 处理由外部邮件路由触发的单收件人投递。
//
// 与 SMTP 入口不同，这里不做 MIME 拆分，原始文本直接作为正文保存。
package edge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/service"
)

// DefaultMaxMessageBytes 是单封邮件的默认大小上限。
const DefaultMaxMessageBytes = 10 << 20

// ErrTooLarge 表示原始邮件超过大小上限。
var ErrTooLarge = errors.New("message exceeds size limit")

// InboundEvent 是一次触发携带的数据。
type InboundEvent struct {
	To         string
	From       string
	Subject    string
	Raw        io.Reader
	ReceivedAt time.Time
}

// Handler 把触发事件转换为邮件并写入键值存储。
type Handler struct {
	messages        *service.MessageService
	maxMessageBytes int64
	logger          *zap.Logger
	metrics         *monitoring.Metrics
}

// NewHandler 创建投递处理器，maxMessageBytes <= 0 时使用默认上限。
func NewHandler(messages *service.MessageService, maxMessageBytes int64, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		messages:        messages,
		maxMessageBytes: maxMessageBytes,
		logger:          logger.Named("edge"),
		metrics:         metrics,
	}
}

// Deliver 处理一次投递并返回入库后的邮件。
func (h *Handler) Deliver(ctx context.Context, ev InboundEvent) (*domain.Message, error) {
	id, err := domain.ParseAddress(ev.To)
	if err != nil {
		h.metrics.RecordRejected(monitoring.RejectInvalid)
		h.logger.Warn("inbound rejected", zap.String("to", ev.To), zap.Error(err))
		return nil, err
	}

	var body string
	if ev.Raw != nil {
		raw, err := io.ReadAll(io.LimitReader(ev.Raw, h.maxMessageBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read raw message: %w", err)
		}
		if int64(len(raw)) > h.maxMessageBytes {
			h.metrics.RecordRejected(monitoring.RejectLimit)
			return nil, ErrTooLarge
		}
		body = string(raw)
	}

	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	from := strings.TrimSpace(ev.From)
	return h.messages.Deliver(ctx, id, domain.Message{
		From:          from,
		SenderAddress: from,
		Subject:       strings.TrimSpace(ev.Subject),
		Body:          body,
		ReceivedAt:    receivedAt,
	})
}
