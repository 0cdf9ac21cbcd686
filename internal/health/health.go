package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Checker 健康检查器
//
// 存活检查只看进程自身（协程数量上限）；
// 就绪检查额外探测邮件服务商是否可以连通。
type Checker struct {
	health healthcheck.Handler
	log    *zap.Logger
}

// NewChecker 创建健康检查器。
//
// 参数:
//   - providerBaseURL: 邮件服务商根地址，用于就绪探测
func NewChecker(providerBaseURL string, log *zap.Logger) *Checker {
	handler := healthcheck.NewHandler()

	handler.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
	handler.AddReadinessCheck("mail-provider", healthcheck.HTTPGetCheck(providerBaseURL, 5*time.Second))

	return &Checker{
		health: handler,
		log:    log,
	}
}

// LiveHandler 返回存活检查处理器。
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(c.health.LiveEndpoint)
}

// ReadyHandler 返回就绪检查处理器。
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(c.health.ReadyEndpoint)
}
