package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
)

// Resolver 根据域名选择提供方：自定义域名走自建后端，其余受支持的域名走公共服务。
//
// 自建后端的状态探测失败后，自定义域名的请求直接返回 domain.ErrBackendUnavailable，
// 直到下一次探测成功。
type Resolver struct {
	public       Provider
	selfHosted   Provider
	customDomain string
	publicDomain map[string]struct{}
	domains      []string

	available atomic.Bool
	logger    *zap.Logger
}

// NewResolver 按客户端配置创建解析器，backend 决定自建后端的类型。
func NewResolver(cfg config.ClientConfig, client *http.Client, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	var selfHosted Provider
	if cfg.Backend == config.BackendEdge {
		selfHosted = NewEdgeProvider(cfg.SelfHostedURL, client)
	} else {
		selfHosted = NewSelfHostedProvider(cfg.SelfHostedURL, client)
	}

	return newResolver(NewPublicProvider(cfg.PublicURL, client), selfHosted, cfg.CustomDomain, cfg.Domains, logger)
}

func newResolver(public, selfHosted Provider, customDomain string, publicDomains []string, logger *zap.Logger) *Resolver {
	r := &Resolver{
		public:       public,
		selfHosted:   selfHosted,
		customDomain: strings.ToLower(strings.TrimSpace(customDomain)),
		publicDomain: make(map[string]struct{}, len(publicDomains)),
		logger:       logger,
	}
	if r.customDomain != "" {
		r.domains = append(r.domains, r.customDomain)
	}
	for _, d := range publicDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || d == r.customDomain {
			continue
		}
		if _, ok := r.publicDomain[d]; ok {
			continue
		}
		r.publicDomain[d] = struct{}{}
		r.domains = append(r.domains, d)
	}
	// 首次探测之前乐观地认为自建后端可用
	r.available.Store(true)
	return r
}

// Domains 返回可选的域名，自定义域名在最前。
func (r *Resolver) Domains() []string {
	out := make([]string, len(r.domains))
	copy(out, r.domains)
	return out
}

// CustomDomain 返回由自建后端接收的域名。
func (r *Resolver) CustomDomain() string {
	return r.customDomain
}

// Available 报告自建后端最近一次探测是否成功。
func (r *Resolver) Available() bool {
	return r.available.Load()
}

// For 返回负责指定域名的提供方。
func (r *Resolver) For(domainName string) (Provider, error) {
	d := strings.ToLower(strings.TrimSpace(domainName))
	if d != "" && d == r.customDomain {
		if !r.available.Load() {
			return nil, fmt.Errorf("%w: %s is offline", domain.ErrBackendUnavailable, r.selfHosted.Name())
		}
		return r.selfHosted, nil
	}
	if _, ok := r.publicDomain[d]; ok {
		return r.public, nil
	}
	return nil, fmt.Errorf("%w: unsupported domain %q", domain.ErrInvalidIdentity, domainName)
}

// ListMessages 通过对应的提供方列出邮件。
func (r *Resolver) ListMessages(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	p, err := r.For(id.Domain)
	if err != nil {
		return nil, err
	}
	return p.ListMessages(ctx, id)
}

// ReadMessage 通过对应的提供方读取单封邮件。
func (r *Resolver) ReadMessage(ctx context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error) {
	p, err := r.For(id.Domain)
	if err != nil {
		return nil, err
	}
	return p.ReadMessage(ctx, id, messageID)
}

// Probe 探测自建后端状态并更新可用标记。
func (r *Resolver) Probe(ctx context.Context) (*domain.ServerStatus, error) {
	status, err := r.selfHosted.Status(ctx)
	prev := r.available.Swap(err == nil)
	switch {
	case err != nil && prev:
		r.logger.Warn("self-hosted backend unavailable, custom domain disabled",
			zap.String("provider", r.selfHosted.Name()),
			zap.String("domain", r.customDomain),
			zap.Error(err),
		)
	case err == nil && !prev:
		r.logger.Info("self-hosted backend recovered",
			zap.String("provider", r.selfHosted.Name()),
			zap.String("domain", r.customDomain),
		)
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// WatchStatus 按 interval 周期探测自建后端，直到 ctx 结束。
func (r *Resolver) WatchStatus(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.Probe(ctx)
		}
	}
}
