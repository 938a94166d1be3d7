// Package main is the entry point for the applet server.
//
// The server stores generated applets on disk and serves them to sync hosts:
//
//	Host (sandbox frame) ⇄ Applet Server → Generation service (speech + LLM)
//
// The server provides:
//   - Document and storage endpoints with Last-Modified change markers
//   - Audio uploads that create or change an applet through the generator
//   - Health and Prometheus metrics endpoints
//   - CORS and per-IP rate limiting
//
// Configuration:
//   - Environment variables (PORT, APPLET_ROOT, GENERATOR_API_KEY, ...)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	GENERATOR_API_KEY=... ./server -port 8000 -root ./applets
//
//	# Development mode (colored logs, debug level)
//	./server -dev
package main
