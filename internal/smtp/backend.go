package smtp

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/mailparse"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/service"
)

// deliverTimeout 是单封邮件入库的时间上限。
const deliverTimeout = 30 * time.Second

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收邮件，不提供中继与发信。未实现 AuthSession，服务器不会宣告 AUTH。
// 配置了 AllowedDomains 时，发往其他域名的收件人在 RCPT 阶段以 550 拒绝；
// 未配置时接收任意域名。
type Backend struct {
	messages        *service.MessageService
	allowed         map[string]struct{}
	limiter         *ConnectionLimiter
	maxMessageBytes int64
	logger          *zap.Logger
	metrics         *monitoring.Metrics
}

// Options 是 Backend 的可选配置。
type Options struct {
	AllowedDomains  []string
	MaxMessageBytes int64
	Limiter         *ConnectionLimiter
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
}

// NewBackend 创建 SMTP Backend。
func NewBackend(messages *service.MessageService, opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(opts.AllowedDomains))
	for _, d := range opts.AllowedDomains {
		allowed[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	maxBytes := opts.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Backend{
		messages:        messages,
		allowed:         allowed,
		limiter:         opts.Limiter,
		maxMessageBytes: maxBytes,
		logger:          logger.Named("smtp"),
		metrics:         opts.Metrics,
	}
}

// NewSession 创建新的 SMTP 会话，超出连接限制时以 421 拒绝。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}

	if b.limiter != nil && !b.limiter.Acquire() {
		b.metrics.RecordRejected(monitoring.RejectLimit)
		b.logger.Warn("connection refused by limiter", zap.String("remote", remote))
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}

	b.metrics.SessionOpened()
	return &session{backend: b, remote: remote}, nil
}

func (b *Backend) domainAllowed(d string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[d]
	return ok
}

// session 的状态：MAIL/RCPT 收集信封，DATA 解析并投递，RSET 回到空闲，
// Logout 结束会话。
type session struct {
	backend    *Backend
	remote     string
	from       string
	recipients []string
	closed     bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = from
	s.recipients = s.recipients[:0]
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 格式不合法的地址在这里照单全收，由解析阶段跳过，保证同一封邮件的
// 其他收件人仍能送达。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if id, err := domain.ParseAddress(to); err == nil && !s.backend.domainAllowed(id.Domain) {
		s.backend.metrics.RecordRejected(monitoring.RejectRelay)
		s.backend.logger.Info("relay denied",
			zap.String("recipient", to),
			zap.String("remote", s.remote))
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}
	s.recipients = append(s.recipients, to)
	return nil
}

// Data 读取邮件内容，解析后为每个合法收件人入库。
func (s *session) Data(r io.Reader) error {
	start := time.Now()
	b := s.backend

	raw, err := io.ReadAll(io.LimitReader(r, b.maxMessageBytes+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > b.maxMessageBytes {
		b.metrics.RecordRejected(monitoring.RejectLimit)
		return &gosmtp.SMTPError{
			Code:         552,
			EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
			Message:      "message too big",
		}
	}

	res, err := mailparse.Parse(bytes.NewReader(raw), mailparse.Envelope{
		From:       s.from,
		Recipients: s.recipients,
		ReceivedAt: start.UTC(),
	})
	if err != nil {
		b.metrics.RecordRejected(monitoring.RejectParse)
		b.logger.Warn("message rejected",
			zap.String("from", s.from),
			zap.Strings("recipients", s.recipients),
			zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "malformed message",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	stored, err := b.messages.DeliverAll(ctx, res)
	b.metrics.RecordEmailProcessingTime(time.Since(start))
	if err != nil && stored == 0 {
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary storage failure, try again later",
		}
	}

	b.logger.Debug("message accepted",
		zap.String("from", s.from),
		zap.Int("stored", stored),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Reset 处理 RSET 命令，也在每封邮件结束后由服务器调用。
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout 结束会话并归还连接许可。
func (s *session) Logout() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	s.backend.metrics.SessionClosed()
	return nil
}
