package tracing

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware traces each request. The trace id is taken from the
// inbound X-Trace-ID header, then the request id, then generated.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := TraceID(c.GetHeader(TraceHeader))
		if traceID == "" {
			traceID = TraceID(c.GetString("request_id"))
		}
		ctx := WithTrace(c.Request.Context(), traceID, SpanID(c.GetHeader(SpanHeader)))

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.url", c.Request.URL.String())
		if applet := c.Param("id"); applet != "" {
			span.SetTag("applet", applet)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}

// Inject copies the trace carried by ctx onto outbound request headers
func Inject(ctx context.Context, h http.Header) {
	if traceID := GetTraceID(ctx); traceID != "" {
		h.Set(TraceHeader, string(traceID))
	}
	if spanID := GetSpanID(ctx); spanID != "" {
		h.Set(SpanHeader, string(spanID))
	}
}
