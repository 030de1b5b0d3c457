// Package mailparse 把一次 SMTP 投递的原始 MIME 数据转换为各收件人的规范化邮件。
package mailparse

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"xinicimail/backend/internal/domain"
)

// Envelope 是 SMTP 会话中收集到的信封信息。
type Envelope struct {
	From       string
	Recipients []string
	ReceivedAt time.Time
}

// Delivery 是发往单个邮箱的一封邮件。
type Delivery struct {
	Identity domain.MailboxIdentity
	Message  domain.Message
}

// Result 是一次解析的结果。Skipped 保存无法解析为 login@domain 的收件人。
type Result struct {
	Deliveries []Delivery
	Skipped    []string
}

// content 是邮件头与正文中与收件人无关的部分。
type content struct {
	fromName    string
	fromAddress string
	subject     string
	text        string
	html        string
}

type partHeader interface {
	ContentType() (string, map[string]string, error)
	ContentDisposition() (string, map[string]string, error)
}

// Parse 解析原始邮件并按信封收件人展开。
//
// 每个合法收件人得到一封邮件，重复收件人只投递一次；不合法的收件人记入
// Skipped，不影响其他收件人。邮件本身无法解析时返回包装了 domain.ErrParse
// 的错误，且不返回任何投递。
func Parse(raw io.Reader, env Envelope) (*Result, error) {
	c, err := readContent(raw)
	if err != nil {
		return nil, err
	}

	receivedAt := env.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	from := c.fromName
	if from == "" {
		from = strings.TrimSpace(env.From)
	}
	sender := c.fromAddress
	if sender == "" {
		sender = strings.TrimSpace(env.From)
	}

	body := c.text
	if body == "" {
		body = c.html
	}

	res := &Result{Deliveries: make([]Delivery, 0, len(env.Recipients))}
	seen := make(map[domain.MailboxKey]struct{}, len(env.Recipients))
	for _, rcpt := range env.Recipients {
		id, err := domain.ParseAddress(rcpt)
		if err != nil {
			res.Skipped = append(res.Skipped, rcpt)
			continue
		}
		if _, dup := seen[id.Key()]; dup {
			continue
		}
		seen[id.Key()] = struct{}{}

		msg := domain.Message{
			From:          from,
			SenderAddress: sender,
			Subject:       c.subject,
			Body:          body,
			ReceivedAt:    receivedAt,
		}
		msg.ApplyDefaults()
		res.Deliveries = append(res.Deliveries, Delivery{Identity: id, Message: msg})
	}
	return res, nil
}

func readContent(raw io.Reader) (*content, error) {
	mr, err := mail.CreateReader(raw)
	if mr == nil {
		return nil, fmt.Errorf("%w: read header: %v", domain.ErrParse, err)
	}
	defer mr.Close()

	c := &content{}
	readHeader(&mr.Header, c)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 未知字符集或传输编码时 part 仍可读，按原始字节保留正文
			if !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return nil, fmt.Errorf("%w: read part: %v", domain.ErrParse, err)
			}
			if part == nil {
				continue
			}
		}

		h, ok := part.Header.(partHeader)
		if !ok {
			continue
		}
		if disp, _, _ := h.ContentDisposition(); strings.EqualFold(disp, "attachment") {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil || ct == "" {
			ct = "text/plain"
		}
		ct = strings.ToLower(ct)
		if ct != "text/plain" && ct != "text/html" {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", domain.ErrParse, err)
		}
		text := strings.TrimSpace(string(data))
		switch {
		case ct == "text/plain" && c.text == "":
			c.text = text
		case ct == "text/html" && c.html == "":
			c.html = text
		}
	}
	return c, nil
}

func readHeader(h *mail.Header, c *content) {
	if subject, err := h.Subject(); err == nil {
		c.subject = strings.TrimSpace(subject)
	} else {
		c.subject = strings.TrimSpace(h.Get("Subject"))
	}

	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		c.fromName = strings.TrimSpace(addrs[0].Name)
		c.fromAddress = strings.ToLower(addrs[0].Address)
	}
	if c.fromName != "" {
		return
	}
	// 无显示名或无法解析时退回原始头
	if raw, err := h.Text("From"); err == nil {
		c.fromName = strings.TrimSpace(raw)
	} else {
		c.fromName = strings.TrimSpace(h.Get("From"))
	}
}
