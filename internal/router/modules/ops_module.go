package modules

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oksasatya/pixsearch-identity/internal/interface/middleware"
	"github.com/oksasatya/pixsearch-identity/internal/metrics"
	"github.com/oksasatya/pixsearch-identity/pkg/response"
)

// OpsModule serves /healthz and, when a gatherer is set, /metrics for private networks.
type OpsModule struct {
	Ping     func(ctx context.Context) error
	Gatherer prometheus.Gatherer
}

func NewOpsModule(ping func(ctx context.Context) error, gatherer prometheus.Gatherer) *OpsModule {
	return &OpsModule{Ping: ping, Gatherer: gatherer}
}

func (m *OpsModule) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", m.health)
	if m.Gatherer != nil {
		rg.GET("/metrics", middleware.PrivateNetworkOnly(), gin.WrapH(metrics.Handler(m.Gatherer)))
	}
}

func (m *OpsModule) health(c *gin.Context) {
	if m.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := m.Ping(ctx); err != nil {
			response.Fail(c, http.StatusServiceUnavailable, "store unavailable", nil)
			return
		}
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"}, "healthy", nil)
}
