// Package config provides 12-factor configuration for the applet server and
// the headless sync host.
//
// Configuration is loaded from environment variables with defaults. Command
// flags override environment values.
//
// Configuration Sections:
//   - Server: HTTP listener, upload limit, CORS origins
//   - Store: applet directory root
//   - Generator: external generation service
//   - Sync: applet server URL, poll interval and call deadlines
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
