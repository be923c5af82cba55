package metrics

import (
	"sync"
	"time"
)

// Default metrics for the rewrite proxy, initialized by Init().
//
// The decision label takes one of three values: mock (a rule matched and
// synthesized the response), forward (no rule matched), passthrough (a rule
// matched but carries no response, so the exchange went upstream anyway).
var (
	// ExchangesTotal counts rewrite exchanges that reached a decision.
	// Labels: decision
	ExchangesTotal *Counter

	// ExchangeDuration tracks wall-clock exchange duration in seconds,
	// including configured mock delays.
	// Labels: decision
	ExchangeDuration *Histogram

	// UpstreamFailuresTotal counts forwards that failed before a response
	// could be relayed.
	UpstreamFailuresTotal *Counter

	// EventsPublishedTotal counts events delivered to at least one observer.
	// Labels: topic
	EventsPublishedTotal *Counter

	// EventsDroppedTotal counts events discarded because an observer's send
	// buffer was full.
	EventsDroppedTotal *Counter

	// ActiveRules is a gauge of stored rules per client, updated on every
	// admin rule replace or clear.
	// Labels: client
	ActiveRules *Gauge

	// ActiveConnections tracks open event-stream connections.
	ActiveConnections *Gauge

	// AdminRequestsTotal counts admin API requests.
	// Labels: method, path, status
	AdminRequestsTotal *Counter

	// UptimeSeconds is a gauge of the server uptime in seconds.
	UptimeSeconds *Gauge

	// RuntimeCollectorInstance is the Go runtime metrics collector.
	RuntimeCollectorInstance *RuntimeCollector

	// runtimeCollectorStop stops the runtime collector goroutine.
	runtimeCollectorStop func()

	// defaultRegistry is the global metrics registry.
	defaultRegistry *Registry

	// initOnce ensures Init() is only called once.
	initOnce sync.Once
)

// Init initializes the default metrics and returns the registry.
// This function is idempotent and safe to call multiple times.
func Init() *Registry {
	initOnce.Do(func() {
		defaultRegistry = NewRegistry()

		ExchangesTotal = defaultRegistry.NewCounter(
			"moxy_exchanges_total",
			"Total number of rewrite exchanges by decision",
			"decision",
		)

		ExchangeDuration = defaultRegistry.NewHistogram(
			"moxy_exchange_duration_seconds",
			"Duration of rewrite exchanges in seconds",
			DefaultBuckets,
			"decision",
		)

		UpstreamFailuresTotal = defaultRegistry.NewCounter(
			"moxy_upstream_failures_total",
			"Total number of failed upstream forwards",
		)

		EventsPublishedTotal = defaultRegistry.NewCounter(
			"moxy_events_published_total",
			"Total number of events delivered to observers",
			"topic",
		)

		EventsDroppedTotal = defaultRegistry.NewCounter(
			"moxy_events_dropped_total",
			"Total number of events dropped on full observer buffers",
		)

		ActiveRules = defaultRegistry.NewGauge(
			"moxy_active_rules",
			"Number of stored rules per client",
			"client",
		)

		ActiveConnections = defaultRegistry.NewGauge(
			"moxy_websocket_connections",
			"Number of open event-stream connections",
		)

		AdminRequestsTotal = defaultRegistry.NewCounter(
			"moxy_admin_requests_total",
			"Total number of admin API requests",
			"method", "path", "status",
		)

		UptimeSeconds = defaultRegistry.NewGauge(
			"moxy_uptime_seconds",
			"Server uptime in seconds",
		)

		RuntimeCollectorInstance = NewRuntimeCollector(defaultRegistry, UptimeSeconds)
		runtimeCollectorStop = RuntimeCollectorInstance.StartCollector(10 * time.Second)
	})

	return defaultRegistry
}

// DefaultRegistry returns the default metrics registry.
// Returns nil if Init() has not been called.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Reset resets all default metrics. Useful for testing.
// This also resets the initOnce, allowing Init() to be called again.
func Reset() {
	if runtimeCollectorStop != nil {
		runtimeCollectorStop()
		runtimeCollectorStop = nil
	}

	initOnce = sync.Once{}
	defaultRegistry = nil
	ExchangesTotal = nil
	ExchangeDuration = nil
	UpstreamFailuresTotal = nil
	EventsPublishedTotal = nil
	EventsDroppedTotal = nil
	ActiveRules = nil
	ActiveConnections = nil
	AdminRequestsTotal = nil
	UptimeSeconds = nil
	RuntimeCollectorInstance = nil
}
