package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"xinicimail/backend/internal/domain"
)

var (
	// 命令行输出样式
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

const timeLayout = "2006-01-02 15:04:05"

// 退出码
const (
	exitError       = 1
	exitInvalid     = 2
	exitNotFound    = 3
	exitUnavailable = 4
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentity):
		return exitInvalid
	case errors.Is(err, domain.ErrNotFound):
		return exitNotFound
	case errors.Is(err, domain.ErrBackendUnavailable):
		return exitUnavailable
	}
	return exitError
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// renderSummary 渲染单行摘要: 时间 ID 发件人 主题
func renderSummary(m domain.Message) string {
	return fmt.Sprintf("%s  %s  %s  %s",
		dimStyle.Render(formatTime(m.ReceivedAt)),
		dimStyle.Render("#"+m.ID),
		boldStyle.Render(m.From),
		m.Subject,
	)
}

func renderInbox(messages []domain.Message) string {
	if len(messages) == 0 {
		return dimStyle.Render("No messages yet") + "\n"
	}
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(renderSummary(m))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func renderMessage(m *domain.Message) string {
	var sb strings.Builder
	sb.WriteString(boldStyle.Render(m.Subject))
	sb.WriteByte('\n')
	from := m.From
	if m.SenderAddress != "" && m.SenderAddress != m.From {
		from = fmt.Sprintf("%s <%s>", m.From, m.SenderAddress)
	}
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("From:"), from)
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("Date:"), formatTime(m.ReceivedAt))
	fmt.Fprintf(&sb, "%s %s\n\n", dimStyle.Render("ID:  "), m.ID)
	sb.WriteString(m.Body)
	sb.WriteByte('\n')
	return sb.String()
}

func renderStatus(url string, s *domain.ServerStatus, probeErr error) string {
	var sb strings.Builder

	var state string
	switch s.Status {
	case domain.StatusOnline:
		state = successStyle.Render(s.Status)
	case domain.StatusDegraded:
		state = warnStyle.Render(s.Status)
	default:
		state = errorStyle.Render(s.Status)
	}
	fmt.Fprintf(&sb, "%s %s\n", boldStyle.Render(url), state)

	if probeErr != nil {
		fmt.Fprintf(&sb, "%s\n", dimStyle.Render(probeErr.Error()))
		return sb.String()
	}

	fmt.Fprintf(&sb, "  backend:    %s\n", s.Backend)
	fmt.Fprintf(&sb, "  ingestion:  %s\n", s.Ingestion)
	fmt.Fprintf(&sb, "  runtime:    %s\n", s.RuntimeVersion)
	fmt.Fprintf(&sb, "  started:    %s\n", formatTime(s.Stats.StartedAt))
	fmt.Fprintf(&sb, "  received:   %d\n", s.Stats.EmailsReceived)
	last := "-"
	if s.Stats.LastEmailAt != nil {
		last = formatTime(*s.Stats.LastEmailAt)
	}
	fmt.Fprintf(&sb, "  last email: %s\n", last)
	return sb.String()
}
