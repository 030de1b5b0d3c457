package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/edge"
)

// errorResponse 错误响应，前端只读取 error 字段
type errorResponse struct {
	Error string `json:"error"`
}

// 通用错误消息
const (
	MsgMissingIdentity    = "Missing identity"
	MsgMissingMessageID   = "Missing message id"
	MsgInvalidIdentity    = "Invalid identity"
	MsgMessageNotFound    = "Message not found"
	MsgBackendUnavailable = "Backend unavailable"
	MsgTooLarge           = "Message too large"
	MsgInternalError      = "Internal server error"
)

// statusFor 把业务错误映射为 HTTP 状态码与对外消息
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrInvalidIdentity):
		return http.StatusBadRequest, MsgInvalidIdentity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, MsgMessageNotFound
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, MsgBackendUnavailable
	case errors.Is(err, edge.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, MsgTooLarge
	default:
		return http.StatusInternalServerError, MsgInternalError
	}
}

// writeError 写出错误响应
func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}
