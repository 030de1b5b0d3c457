package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"xinicimail/backend/internal/storage"
)

// checkTimeout 是单项检查的时间上限
const checkTimeout = 3 * time.Second

// Probe 是可选的附加就绪检查，例如 SMTP 监听是否已绑定。
type Probe interface {
	Health() error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	probes map[string]Probe
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，probes 中的检查只参与 /ready。
func NewHealthChecker(store storage.Store, probes map[string]Probe, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		probes: probes,
		logger: logger,
	}

	hc.addChecks()
	return hc
}

func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("store", healthcheck.Timeout(hc.checkStore, checkTimeout))
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))

	for name, probe := range hc.probes {
		hc.health.AddReadinessCheck(name, probe.Health)
	}
}

func (hc *HealthChecker) checkStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	if err := hc.store.Health(ctx); err != nil {
		hc.logger.Warn("store health check failed", zap.Error(err))
		return err
	}
	return nil
}

// Handler 返回挂载在 /health 下的处理器，提供 /health/live 与 /health/ready。
func (hc *HealthChecker) Handler() http.Handler {
	return http.StripPrefix("/health", hc.health)
}
