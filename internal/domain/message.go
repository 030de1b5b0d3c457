package domain

import "time"

// 解析结果缺失时使用的占位内容
const (
	DefaultSubject = "(No Subject)"
	DefaultBody    = "No content"
	UnknownSender  = "Unknown"
)

// Message 表示一次性邮箱内的一封规范化邮件，入库后不可修改。
//
// ReceivedAt 序列化为 "date"，与前端及两个后端的既有 JSON 约定一致。
type Message struct {
	ID            string    `json:"id"`
	From          string    `json:"from"`
	SenderAddress string    `json:"senderAddress,omitempty"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body,omitempty"`
	ReceivedAt    time.Time `json:"date"`
}

// ApplyDefaults 为缺失的主题、正文与发件人填充占位值。
func (m *Message) ApplyDefaults() {
	if m.Subject == "" {
		m.Subject = DefaultSubject
	}
	if m.Body == "" {
		m.Body = DefaultBody
	}
	if m.From == "" {
		m.From = UnknownSender
	}
	if m.SenderAddress == "" {
		m.SenderAddress = m.From
	}
}

// Summary 返回列表视图使用的摘要（去掉正文与发件地址）。
func (m Message) Summary() Message {
	m.Body = ""
	m.SenderAddress = ""
	return m
}
