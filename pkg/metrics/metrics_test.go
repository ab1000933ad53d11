package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetrics(t *testing.T) {
	c := NewCollector("ontology_test")

	c.RunStarted()
	c.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RunsInFlight))

	c.ObserveStep("ltv", 20*time.Millisecond)
	c.ObserveRun("completed", time.Second)
	c.ObserveRun("failed", time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.RunsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.StepDuration))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewCollector("ontology_test")

	engine := gin.New()
	engine.Use(c.GinMiddleware())
	engine.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })
	engine.GET("/metrics", gin.WrapH(c.Handler()))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RequestsTotal.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ontology_test_http_requests_total")
}
