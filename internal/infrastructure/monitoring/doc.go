/*
Package monitoring provides Prometheus metrics for the applet server and the
sync engine.

# Usage

	reg := prometheus.NewRegistry()

	// Server side
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Client side
	sync := monitoring.NewSyncMetrics(reg)
	sync.RecordProbe(err)

Metrics are registered on the given Registerer so tests can use fresh
registries.
*/
package monitoring
