package web

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"team-presence/pkg/common"
)

// HealthCheckFunc 健康检查函数
type HealthCheckFunc func(context.Context) error

// HealthStatus 健康状态
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult 检查结果
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// HealthChecker 依次执行已注册的检查
type HealthChecker struct {
	logger  common.Logger
	timeout time.Duration
	checks  map[string]HealthCheckFunc
	mu      sync.RWMutex
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger common.Logger) *HealthChecker {
	return &HealthChecker{
		logger:  logger,
		timeout: 5 * time.Second,
		checks:  make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck 注册健康检查
func (h *HealthChecker) RegisterCheck(name string, checkFunc HealthCheckFunc) {
	h.logger.Debug("Registering health check: %s", name)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks[name] = checkFunc
}

// Check 执行健康检查
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, fn := range h.checks {
		names = append(names, name)
		checks[name] = fn
	}
	h.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		start := time.Now()
		err := checks[name](cctx)
		cancel()

		result := CheckResult{
			Status:    "healthy",
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Status = "unhealthy"
			result.Message = err.Error()
			status.Status = "unhealthy"
			h.logger.Warn("Health check failed: %s - %v", name, err)
		}
		status.Checks[name] = result
	}

	return status
}

// PingCheck 把 Ping 方法包装为健康检查
func PingCheck(name string, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
		return nil
	}
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
		return
	}

	status := s.health.Check(r.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
