package metrics

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mqt"

// Metrics holds the process-wide collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messages        *prometheus.CounterVec
	queueDropped    prometheus.Counter
	sinkDropped     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	brokerConnected prometheus.Gauge
	connectAttempts *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors and registers them with Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Inbound broker messages by processing outcome.",
		}, []string{"outcome"}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_dropped_total",
			Help:      "Messages dropped because the dispatch queue was full.",
		}),
		sinkDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rejections_dropped_total",
			Help:      "Rejection reports dropped because a sink queue was full.",
		}, []string{"sink"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Messages waiting for the dispatcher.",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "connected",
			Help:      "1 while the broker connection is up.",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "connect_attempts_total",
			Help:      "Broker connection attempts by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.messages,
		m.queueDropped,
		m.sinkDropped,
		m.queueDepth,
		m.brokerConnected,
		m.connectAttempts,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) MessageProcessed(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueueDropped() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}

// RejectionDropped counts a rejection report a sink never saw
func (m *Metrics) RejectionDropped(sink string) {
	if m == nil {
		return
	}
	m.sinkDropped.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetBrokerConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.brokerConnected.Set(1)
		return
	}
	m.brokerConnected.Set(0)
}

// ConnectAttempt records one connection attempt; result is "ok" or "error"
func (m *Metrics) ConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

// GinMiddleware counts requests by matched route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// MessageCounter returns the counter for one outcome, for assertions in other packages
func (m *Metrics) MessageCounter(outcome string) prometheus.Counter {
	return m.messages.WithLabelValues(outcome)
}

// QueueDroppedCounter returns the overflow counter
func (m *Metrics) QueueDroppedCounter() prometheus.Counter {
	return m.queueDropped
}

// RejectionDroppedCounter returns the drop counter of one sink
func (m *Metrics) RejectionDroppedCounter(sink string) prometheus.Counter {
	return m.sinkDropped.WithLabelValues(sink)
}

// ConnectAttemptCounter returns the attempt counter for one result
func (m *Metrics) ConnectAttemptCounter(result string) prometheus.Counter {
	return m.connectAttempts.WithLabelValues(result)
}

// BrokerConnectedGauge returns the connection gauge
func (m *Metrics) BrokerConnectedGauge() prometheus.Gauge {
	return m.brokerConnected
}
