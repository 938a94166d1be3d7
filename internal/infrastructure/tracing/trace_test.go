package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer := New("test", nil)
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	assert.NotEmpty(t, root.TraceID)
	assert.Empty(t, root.ParentID)

	child, ctx := tracer.StartSpan(ctx, "child")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(ctx))
	assert.Equal(t, root.TraceID, GetTraceID(ctx))
}

func TestSpanLifecycle(t *testing.T) {
	tracer := New("test", nil)
	defer tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "op")
	span.SetStatus(http.StatusNotFound)
	span.SetTag("applet", "a1")
	time.Sleep(time.Millisecond)
	span.Finish()

	assert.Equal(t, http.StatusNotFound, span.StatusCode)
	assert.Equal(t, "a1", span.Tags["applet"])
	assert.Positive(t, span.Duration)

	span.SetError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, span.StatusCode)
}

func TestInject(t *testing.T) {
	h := http.Header{}
	Inject(context.Background(), h)
	assert.Empty(t, h)

	ctx := WithTrace(context.Background(), "trace-1", "span-1")
	Inject(ctx, h)
	assert.Equal(t, "trace-1", h.Get(TraceHeader))
	assert.Equal(t, "span-1", h.Get(SpanHeader))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))
	defer tracer.Close()

	var seen TraceID
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("request_id", "req-42")
		c.Next()
	})
	r.Use(HTTPMiddleware(tracer))
	r.GET("/applet/:id/html", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("falls back to request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/applet/a1/html", nil))

		assert.Equal(t, TraceID("req-42"), seen)
		assert.Equal(t, "req-42", w.Header().Get(TraceHeader))
		assert.NotEmpty(t, w.Header().Get(SpanHeader))
	})

	t.Run("inbound trace wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/applet/a1/html", nil)
		req.Header.Set(TraceHeader, "upstream")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, TraceID("upstream"), seen)
	})

	require.Eventually(t, func() bool {
		return logs.FilterMessage("span completed").Len() == 2
	}, time.Second, 5*time.Millisecond)

	entry := logs.FilterMessage("span completed").All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "GET /applet/:id/html", fields["operation"])
	assert.Equal(t, "a1", fields["applet"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New("test", nil)
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	span.Finish()
	assert.NotPanics(t, func() { tracer.Submit(span) })
}
