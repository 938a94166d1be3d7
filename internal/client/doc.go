// Package client provides the HTTP client for the applet server.
//
// It covers every endpoint the sync engine consumes:
//   - storage: GET, HEAD, PUT and DELETE on /applet/{id}/storage
//   - content: GET and HEAD on /applet/{id}/html
//   - lifecycle: POST /applet (create) and POST /applet/{id} (replace)
//
// Built on go-resty/resty over a pooled go-retryablehttp transport:
//   - Read and write calls are single attempts; the poll loop is the retry
//   - GET and HEAD bypass intermediate caches
//   - Uploads run behind a circuit breaker
//   - Optional client-side rate limiting
//
// Example Usage:
//
//	c := client.NewClient(client.Config{BaseURL: "http://localhost:8000"})
//	marker, err := c.Probe(ctx, id, client.ResourceContent)
package client
