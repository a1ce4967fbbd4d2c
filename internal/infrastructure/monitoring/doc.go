/*
Package monitoring provides Prometheus metrics for the runtime.

# Overview

Metrics is registered against an explicit prometheus.Registerer so tests and
embedders can keep separate registries. It observes the runtime directly:

- rtconfig.Observer: configuration state and page protection changes
- vm.Observer: VM lifecycle and script durations
- interpreter.Observer: dispatch counts per table

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	block.SetObserver(metrics)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "finalize")
	// ... perform phase ...
	timer.Stop("ok")
*/
package monitoring
