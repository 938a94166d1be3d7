// Package middleware provides the HTTP middleware stack for the applet server.
//
// Middleware stack includes:
//   - RequestID: Tags each request with an X-Request-ID, reusing the caller's
//   - CORS: Cross-origin access for browser hosts, exposing Last-Modified
//   - RateLimit: Per-IP token bucket rate limiting with idle client cleanup
//   - BodyLimit: Rejects oversized request bodies with 413
//
// Rate Limiting:
//   - Per-IP tracking via gin's ClientIP
//   - Token bucket algorithm (golang.org/x/time/rate)
//   - Configurable RPS and burst capacity
//
// A polling host issues two HEAD requests per interval per applet, so
// limits are sized well above that rate.
package middleware
