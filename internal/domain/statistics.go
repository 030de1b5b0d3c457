package domain

import "time"

// ServerStats 是进程级收件统计，随每次成功入库单调更新，只读暴露给查询接口。
type ServerStats struct {
	StartedAt      time.Time  `json:"startedAt"`
	EmailsReceived int64      `json:"emailsReceived"`
	LastEmailAt    *time.Time `json:"lastEmailAt"`
}

// ServerStatus 是 /api/status 的响应体。
type ServerStatus struct {
	Status         string      `json:"status"`
	Stats          ServerStats `json:"stats"`
	RuntimeVersion string      `json:"runtimeVersion"`
	Backend        string      `json:"backend"`
	Ingestion      string      `json:"ingestion"`
}

// 存储后端名称
const (
	BackendMemory = "memory"
	BackendEdge   = "edge"
)

// 收件通道状态
const (
	IngestionActive   = "active"
	IngestionDisabled = "disabled"
)

// 服务状态
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
	StatusOffline  = "offline"
)
