/*
Package monitoring provides Prometheus metrics for the Nest service.

# Overview

Tracks HTTP request latency and throughput, trace ingestion volume,
dashboard viewer connections, broadcast evictions, and summarize relay
outcomes.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	metrics.TracesIngested.Inc()
	metrics.WSConnections.Inc()

# Metrics Endpoint

Each Metrics value owns its registry; expose it with promhttp:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
*/
package monitoring
