package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAndGauges(t *testing.T) {
	m := New()

	m.MessageProcessed("stored")
	m.MessageProcessed("stored")
	m.MessageProcessed("unresolved")
	m.QueueDropped()
	m.SetBrokerConnected(true)
	m.ConnectAttempt("error")
	m.RejectionDropped("archive")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("unresolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queueDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.brokerConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionDroppedCounter("archive")))

	m.SetBrokerConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.brokerConnected))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageProcessed("stored")
		m.QueueDropped()
		m.SetQueueDepth(3)
		m.SetBrokerConnected(true)
		m.ConnectAttempt("ok")
		m.RejectionDropped("archive")
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	m.MessageProcessed("stored")

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// first request populates the http counter for the second scrape
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mqt_ingest_messages_total{outcome="stored"} 1`)
	assert.Contains(t, rec.Body.String(), `mqt_http_requests_total{method="GET",route="/metrics",status="200"}`)
}
