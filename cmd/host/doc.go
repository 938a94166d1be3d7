// Package main runs a headless applet host.
//
// The host loads an applet into a sandboxed frame, writes the applet's
// localStorage changes back to the server and reloads the frame whenever
// the server's copy of the document or storage changes.
//
// Usage:
//
//	# Host an applet, polling every 333ms
//	./host -server http://localhost:8000 -applet <uuid>
//
//	# Clear the applet's stored data
//	./host -applet <uuid> -clear
//
//	# Apply a spoken change, then keep hosting the result
//	./host -applet <uuid> -replace change.webm
//
//	# Expose sync counters for scraping
//	./host -applet <uuid> -metrics :9100
package main
