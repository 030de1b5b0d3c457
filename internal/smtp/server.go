package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
)

// Server 包装 go-smtp 服务器并记录收件通道是否可用。
//
// 监听失败不会终止进程：Listen 返回错误后 Active 为 false，
// 查询接口继续工作并在状态中报告收件通道不可用。
type Server struct {
	srv    *gosmtp.Server
	ln     net.Listener
	active atomic.Bool
	logger *zap.Logger
}

// NewServer 根据配置创建 SMTP 服务器。
func NewServer(backend *Backend, cfg config.SMTPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := gosmtp.NewServer(backend)
	srv.Addr = cfg.BindAddr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = cfg.ReadTimeout
	srv.WriteTimeout = cfg.WriteTimeout
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.MaxRecipients = cfg.MaxRecipients
	srv.AllowInsecureAuth = false

	return &Server{srv: srv, logger: logger.Named("smtp")}
}

// Listen 绑定监听地址，失败时返回包装了 domain.ErrBackendUnavailable 的错误。
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		s.active.Store(false)
		err = fmt.Errorf("%w: smtp bind %s: %v", domain.ErrBackendUnavailable, s.srv.Addr, err)
		s.logger.Error("smtp ingestion disabled", zap.Error(err))
		return err
	}
	s.ln = ln
	s.active.Store(true)
	s.logger.Info("smtp server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Serve 在已绑定的地址上处理连接，直到服务器关闭。未绑定时直接返回。
func (s *Server) Serve() error {
	if s.ln == nil {
		return nil
	}
	err := s.srv.Serve(s.ln)
	s.active.Store(false)
	if errors.Is(err, gosmtp.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr 返回实际监听地址，未绑定时为 nil。
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Active 报告收件通道是否可用。
func (s *Server) Active() bool {
	return s.active.Load()
}

// Health 供健康检查使用。
func (s *Server) Health() error {
	if !s.Active() {
		return fmt.Errorf("%w: smtp listener not bound", domain.ErrBackendUnavailable)
	}
	return nil
}

// Shutdown 优雅关闭服务器。
func (s *Server) Shutdown(ctx context.Context) error {
	s.active.Store(false)
	if s.ln == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	_ = s.ln.Close()
	if err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
		return err
	}
	return nil
}
