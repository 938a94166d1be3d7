// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Logs go to stderr by default so the host CLI can print previews on stdout.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	sync := logger.Applet("sync", id)
//	sync.Warn("Storage write failed", zap.Error(err))
package logging
