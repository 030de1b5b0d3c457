package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"xinicimail/backend/internal/domain"
)

// 自建后端提供方名称
const (
	SelfHostedName = "self-hosted"
	EdgeName       = "edge"
)

// selfHostedAPI 封装两种自建后端共用的查询接口。
type selfHostedAPI struct {
	name    string
	baseURL string
	client  *http.Client
}

func newSelfHostedAPI(name, baseURL string, client *http.Client) selfHostedAPI {
	return selfHostedAPI{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultClient(client),
	}
}

func (a selfHostedAPI) Name() string { return a.name }

func (a selfHostedAPI) list(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	var messages []domain.Message
	if err := getJSON(ctx, a.client, a.baseURL+"/api/messages", identityQuery(id), &messages); err != nil {
		return nil, fmt.Errorf("list %s via %s: %w", id, a.name, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// ReadMessage GET /api/read?login=&domain=&id=
func (a selfHostedAPI) ReadMessage(ctx context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error) {
	if messageID == "" {
		return nil, domain.ErrNotFound
	}
	q := identityQuery(id)
	q.Set("id", messageID)

	var msg domain.Message
	if err := getJSON(ctx, a.client, a.baseURL+"/api/read", q, &msg); err != nil {
		return nil, fmt.Errorf("read %s via %s: %w", id, a.name, err)
	}
	msg.ApplyDefaults()
	return &msg, nil
}

// Status GET /api/status
func (a selfHostedAPI) Status(ctx context.Context) (*domain.ServerStatus, error) {
	var status domain.ServerStatus
	if err := getJSON(ctx, a.client, a.baseURL+"/api/status", nil, &status); err != nil {
		return nil, fmt.Errorf("probe %s: %w", a.name, err)
	}
	return &status, nil
}

// SelfHostedProvider 访问内存存储后端，列表已包含正文。
type SelfHostedProvider struct {
	selfHostedAPI
}

var _ Provider = (*SelfHostedProvider)(nil)

// NewSelfHostedProvider 创建内存存储后端的提供方。
func NewSelfHostedProvider(baseURL string, client *http.Client) *SelfHostedProvider {
	return &SelfHostedProvider{selfHostedAPI: newSelfHostedAPI(SelfHostedName, baseURL, client)}
}

// ListMessages GET /api/messages
func (p *SelfHostedProvider) ListMessages(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	messages, err := p.list(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].ApplyDefaults()
	}
	return messages, nil
}

// EdgeProvider 访问键值存储后端，列表只有摘要，正文通过 ReadMessage 获取。
type EdgeProvider struct {
	selfHostedAPI
}

var _ Provider = (*EdgeProvider)(nil)

// NewEdgeProvider 创建键值存储后端的提供方。
func NewEdgeProvider(baseURL string, client *http.Client) *EdgeProvider {
	return &EdgeProvider{selfHostedAPI: newSelfHostedAPI(EdgeName, baseURL, client)}
}

// ListMessages GET /api/messages
func (p *EdgeProvider) ListMessages(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	messages, err := p.list(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i] = messages[i].Summary()
	}
	return messages, nil
}
