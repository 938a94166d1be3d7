/*
Package tracing provides lightweight request tracing for the applet server
and the sync client.

# Overview

Each server request opens a span named after its route. Finished spans are
handed to a buffered collector that logs them through zap, so tracing never
blocks a handler. Spans for successful requests are logged at debug level
because a polling host probes every applet twice per interval.

# Usage

	tracer := tracing.New("appletsync", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// outbound calls with ctx from a traced handler or StartSpan
	tracing.Inject(ctx, req.Header)

# Trace Format

Traces travel in HTTP headers:
  - X-Trace-ID: identifier for the entire request flow
  - X-Span-ID: identifier for the current operation

When no X-Trace-ID arrives, the request id assigned by the request id
middleware is used as the trace id.
*/
package tracing
