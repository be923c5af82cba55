// Package metrics provides Prometheus-compatible metrics collection for the
// rewrite proxy.
//
// This package implements the Prometheus text exposition format (text/plain;
// version=0.0.4) without any external dependencies, using only the standard
// library.
//
// Supported metric types:
//   - Counter: monotonically increasing value (e.g., exchange counts)
//   - Gauge: value that can go up or down (e.g., open connections)
//   - Histogram: distribution of values with configurable buckets (e.g., latencies)
//
// All metrics are thread-safe and can be updated from multiple goroutines.
//
// # Default Metrics
//
// The package provides pre-defined metrics for tracking proxy activity:
//
//   - moxy_exchanges_total: Counter for decided exchanges (labels: decision)
//   - moxy_exchange_duration_seconds: Histogram for exchange latency (labels: decision)
//   - moxy_upstream_failures_total: Counter for failed forwards
//   - moxy_events_published_total / moxy_events_dropped_total: event delivery counters
//   - moxy_active_rules: Gauge for stored rules (labels: client)
//   - moxy_websocket_connections: Gauge for open event-stream connections
//
// The decision label is one of mock, forward, passthrough.
//
// # Usage
//
//	// Initialize the default metrics registry
//	registry := metrics.Init()
//
//	// Count a decided exchange
//	metrics.ExchangesTotal.WithLabels("mock").Inc()
//	metrics.ExchangeDuration.WithLabels("mock").Observe(0.123)
//
//	// Register the /metrics endpoint
//	http.Handle("/metrics", registry.Handler())
//
// Custom metrics can also be created:
//
//	registry := metrics.NewRegistry()
//	counter := registry.NewCounter("my_counter", "Description of counter", "label1", "label2")
//	counter.WithLabels("value1", "value2").Inc()
package metrics
