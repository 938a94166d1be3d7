package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSyncMetrics(t *testing.T) {
	m := NewSyncMetrics(prometheus.NewRegistry())

	m.RecordProbe(nil)
	m.RecordProbe(errors.New("down"))
	m.RecordProbe(nil)
	m.RecordWrite(errors.New("down"))
	m.RecordReload(nil)
	m.IncChanges()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Probes.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesDetected))
}

func TestNilSyncMetrics(t *testing.T) {
	var m *SyncMetrics
	assert.NotPanics(t, func() {
		m.RecordProbe(nil)
		m.RecordReload(nil)
		m.RecordWrite(nil)
		m.IncChanges()
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(metrics))
	router.GET("/applet/:id/html", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/applet/a/html", "/applet/b/html", "/missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/applet/:id/html", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}
