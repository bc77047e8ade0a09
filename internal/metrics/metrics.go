// Package metrics exposes identity service counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
)

const namespace = "identity"

// Collector records auth outcomes, token lifecycle events, notification
// deliveries and HTTP traffic.
type Collector struct {
	auth        *prometheus.CounterVec
	tokens      *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	purged      prometheus.Counter
	httpTotal   *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// NewCollector registers every metric on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Auth operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_events_total",
			Help:      "Token lifecycle events by purpose.",
		}, []string{"purpose", "event"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification hand-offs by kind and result.",
		}, []string{"kind", "result"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_purged_total",
			Help:      "Expired tokens removed by the cleanup worker.",
		}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests.",
		}, []string{"path", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
	}
	reg.MustRegister(c.auth, c.tokens, c.deliveries, c.purged, c.httpTotal, c.httpLatency)
	return c
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (c *Collector) Auth(op, outcome string) {
	c.auth.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) Token(purpose entity.TokenPurpose, event string) {
	c.tokens.WithLabelValues(string(purpose), event).Inc()
}

func (c *Collector) Delivery(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.deliveries.WithLabelValues(kind, result).Inc()
}

// Purged counts tokens removed by one cleanup sweep.
func (c *Collector) Purged(n int64) {
	if n > 0 {
		c.purged.Add(float64(n))
	}
}

// Middleware records request counts and latency by route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		c.httpTotal.WithLabelValues(path, ctx.Request.Method, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpLatency.WithLabelValues(path, ctx.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
