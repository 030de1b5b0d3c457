package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xinicimail/backend/internal/domain"
)

// PublicName 是公共服务提供方的名称。
const PublicName = "public"

// publicDateLayout 是公共 API 返回的时间格式（UTC）
const publicDateLayout = "2006-01-02 15:04:05"

// PublicProvider 访问 1secmail 风格的公共临时邮箱 API。
//
// 列表只有摘要，正文需要逐封通过 readMessage 获取。
type PublicProvider struct {
	baseURL string
	client  *http.Client
}

var _ Provider = (*PublicProvider)(nil)

// NewPublicProvider 创建公共服务提供方，client 为 nil 时使用默认超时的客户端。
func NewPublicProvider(baseURL string, client *http.Client) *PublicProvider {
	return &PublicProvider{
		baseURL: baseURL,
		client:  defaultClient(client),
	}
}

// publicSummary 是 getMessages 返回的条目
type publicSummary struct {
	ID      int64  `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// publicMessage 是 readMessage 返回的完整邮件
type publicMessage struct {
	publicSummary
	Body     string `json:"body"`
	TextBody string `json:"textBody"`
	HTMLBody string `json:"htmlBody"`
}

func (p *PublicProvider) Name() string { return PublicName }

// ListMessages GET ?action=getMessages&login=&domain=
func (p *PublicProvider) ListMessages(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	q := identityQuery(id)
	q.Set("action", "getMessages")

	var items []publicSummary
	if err := getJSON(ctx, p.client, p.baseURL, q, &items); err != nil {
		return nil, fmt.Errorf("list %s via %s: %w", id, PublicName, err)
	}

	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		messages = append(messages, item.toMessage().Summary())
	}
	return messages, nil
}

// ReadMessage GET ?action=readMessage&login=&domain=&id=
func (p *PublicProvider) ReadMessage(ctx context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error) {
	if _, err := strconv.ParseInt(messageID, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: message id %q is not numeric", domain.ErrNotFound, messageID)
	}

	q := identityQuery(id)
	q.Set("action", "readMessage")
	q.Set("id", messageID)

	var raw publicMessage
	if err := getJSON(ctx, p.client, p.baseURL, q, &raw); err != nil {
		// 公共 API 对不存在的邮件返回纯文本 "Message not found"
		if errors.Is(err, errNotJSON) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, id, messageID)
		}
		return nil, fmt.Errorf("read %s via %s: %w", id, PublicName, err)
	}

	msg := raw.toMessage()
	switch {
	case strings.TrimSpace(raw.TextBody) != "":
		msg.Body = strings.TrimSpace(raw.TextBody)
	case strings.TrimSpace(raw.Body) != "":
		msg.Body = strings.TrimSpace(raw.Body)
	default:
		msg.Body = strings.TrimSpace(raw.HTMLBody)
	}
	msg.ApplyDefaults()
	return &msg, nil
}

// Status 通过 getDomainList 探测公共服务是否可达。
func (p *PublicProvider) Status(ctx context.Context) (*domain.ServerStatus, error) {
	var domains []string
	if err := getJSON(ctx, p.client, p.baseURL, url.Values{"action": {"getDomainList"}}, &domains); err != nil {
		return nil, fmt.Errorf("probe %s: %w", PublicName, err)
	}
	return &domain.ServerStatus{
		Status:    domain.StatusOnline,
		Backend:   PublicName,
		Ingestion: domain.IngestionActive,
	}, nil
}

func (s publicSummary) toMessage() domain.Message {
	name, addr := splitSender(s.From)
	msg := domain.Message{
		ID:            strconv.FormatInt(s.ID, 10),
		From:          name,
		SenderAddress: addr,
		Subject:       s.Subject,
	}
	if t, err := time.ParseInLocation(publicDateLayout, s.Date, time.UTC); err == nil {
		msg.ReceivedAt = t
	}
	if msg.Subject == "" {
		msg.Subject = domain.DefaultSubject
	}
	if msg.From == "" {
		msg.From = domain.UnknownSender
	}
	return msg
}

// splitSender 把 "Name <addr>" 拆成显示名与地址，显示名为空时使用地址。
func splitSender(from string) (string, string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}
	if a, err := mail.ParseAddress(from); err == nil {
		if a.Name != "" {
			return a.Name, a.Address
		}
		return a.Address, a.Address
	}
	if name, _, ok := strings.Cut(from, "<"); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name), from
	}
	return from, from
}
