package monitoring

import (
	"sync/atomic"
	"time"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/storage"
)

// Stats 是进程级收件统计，同时把存储事件转发给 Prometheus 指标。
type Stats struct {
	startedAt      time.Time
	emailsReceived atomic.Int64
	lastEmailAt    atomic.Int64 // UnixNano，0 表示尚未收到
	metrics        *Metrics
}

var _ storage.Recorder = (*Stats)(nil)

// NewStats 创建统计实例，metrics 可以为 nil。
func NewStats(metrics *Metrics) *Stats {
	return &Stats{
		startedAt: time.Now().UTC(),
		metrics:   metrics,
	}
}

// RecordDelivery 记录一次成功入库，lastEmailAt 只会前进不会回退。
func (s *Stats) RecordDelivery(receivedAt time.Time) {
	s.emailsReceived.Add(1)
	ts := receivedAt.UnixNano()
	for {
		cur := s.lastEmailAt.Load()
		if ts <= cur || s.lastEmailAt.CompareAndSwap(cur, ts) {
			break
		}
	}
	s.metrics.RecordMessageStored()
}

// RecordEviction 记录一次容量淘汰
func (s *Stats) RecordEviction() {
	s.metrics.RecordMessageEvicted()
}

// Snapshot 返回当前统计的副本
func (s *Stats) Snapshot() domain.ServerStats {
	snap := domain.ServerStats{
		StartedAt:      s.startedAt,
		EmailsReceived: s.emailsReceived.Load(),
	}
	if ts := s.lastEmailAt.Load(); ts != 0 {
		last := time.Unix(0, ts).UTC()
		snap.LastEmailAt = &last
	}
	return snap
}
