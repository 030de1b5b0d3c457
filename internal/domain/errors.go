package domain

import "errors"

// 收件与查询链路共享的错误分类
var (
	// ErrInvalidIdentity 表示 login/domain 不合法，在访问存储之前即被拒绝。
	ErrInvalidIdentity = errors.New("invalid mailbox identity")
	// ErrParse 表示原始邮件无法解析，整封投递被拒绝。
	ErrParse = errors.New("malformed message")
	// ErrNotFound 表示邮件不存在或已过期。
	ErrNotFound = errors.New("message not found")
	// ErrBackendUnavailable 表示监听端口无法绑定或下游存储不可达。
	ErrBackendUnavailable = errors.New("backend unavailable")
)
