package provider

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xinicimail/backend/internal/domain"
)

// DefaultTimeout 是单次 HTTP 请求的超时时间。
const DefaultTimeout = 15 * time.Second

// LoginLength 是随机生成的 login 长度。
const LoginLength = 8

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Provider 是客户端访问某一类邮箱服务的统一入口，
// 各实现负责把各自的响应格式转换为 domain.Message。
type Provider interface {
	Name() string
	ListMessages(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error)
	ReadMessage(ctx context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error)
	Status(ctx context.Context) (*domain.ServerStatus, error)
}

// NewAddress 在指定域名下生成一个随机的 8 位 base36 地址。
func NewAddress(domainName string) (domain.MailboxIdentity, error) {
	var sb strings.Builder
	limit := big.NewInt(int64(len(base36)))
	for i := 0; i < LoginLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return domain.MailboxIdentity{}, fmt.Errorf("generate login: %w", err)
		}
		sb.WriteByte(base36[n.Int64()])
	}
	return domain.NewIdentity(sb.String(), domainName)
}

// statusError 表示服务端返回了非 2xx 状态码。
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("service responded with %d", e.Code)
	}
	return fmt.Sprintf("service responded with %d: %s", e.Code, e.Body)
}

// errorBody 是自建后端的错误响应格式
type errorBody struct {
	Error string `json:"error"`
}

// getJSON 发送 GET 请求并把 JSON 响应解码到 out。
//
// 404 映射为 domain.ErrNotFound，5xx 与网络错误映射为 domain.ErrBackendUnavailable，
// 非 JSON 响应体返回 errNotJSON。
func getJSON(ctx context.Context, client *http.Client, endpoint string, query url.Values, out any) error {
	u := endpoint
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		u = endpoint + sep + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{Code: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			se.Body = eb.Error
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", domain.ErrNotFound, se)
		case resp.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, se)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, se)
		}
		return se
	}

	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return errNotJSON
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed JSON response: %w", err)
	}
	return nil
}

var errNotJSON = errors.New("server returned non-JSON response")

func identityQuery(id domain.MailboxIdentity) url.Values {
	q := url.Values{}
	q.Set("login", id.Login)
	q.Set("domain", id.Domain)
	return q
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}
