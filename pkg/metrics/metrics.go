package metrics

import (
	"strconv"
	"time"

	"github.com/aixtiv/sallyport/internal/common/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus registry and the metric families exposed by
// the gateway.
type Metrics struct {
	registry    *prometheus.Registry
	httpReqCnt  *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	httpInfl    *prometheus.GaugeVec
	tokenCnt    *prometheus.CounterVec
	deployCnt   *prometheus.CounterVec
	provisioned *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	tokenCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "oauth_tokens_issued_total"}, []string{"tenant"})
	deployCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "mcp_deployments_total"}, []string{"tenant", "status"})
	provisioned := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "users_provisioned_total"}, []string{"tenant"})
	r.MustRegister(tokenCnt, deployCnt, provisioned)

	return &Metrics{
		registry:    r,
		httpReqCnt:  httpReqCnt,
		httpDur:     httpDur,
		httpInfl:    httpInfl,
		tokenCnt:    tokenCnt,
		deployCnt:   deployCnt,
		provisioned: provisioned,
	}
}

func (m *Metrics) TokenIssued(tenant string) {
	m.tokenCnt.WithLabelValues(tenant).Inc()
}

func (m *Metrics) DeploymentRecorded(tenant, status string) {
	m.deployCnt.WithLabelValues(tenant, status).Inc()
}

func (m *Metrics) UserProvisioned(tenant string) {
	m.provisioned.WithLabelValues(tenant).Inc()
}

// GinMiddleware records request count, duration and in-flight gauges per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
