package metrics

import (
	"runtime"
	rtmetrics "runtime/metrics"
	"time"
)

// runtimeSamples maps runtime/metrics sample names onto exported gauges.
// Only scalar sample kinds are exposed; histogram-kind samples are skipped.
var runtimeSamples = []struct {
	sample string
	name   string
	help   string
}{
	{"/sched/goroutines:goroutines", "go_goroutines", "Number of goroutines that currently exist"},
	{"/memory/classes/heap/objects:bytes", "go_memstats_heap_alloc_bytes", "Bytes of allocated heap objects"},
	{"/memory/classes/heap/free:bytes", "go_memstats_heap_idle_bytes", "Heap bytes waiting to be reused"},
	{"/memory/classes/heap/released:bytes", "go_memstats_heap_released_bytes", "Heap bytes returned to the OS"},
	{"/memory/classes/heap/stacks:bytes", "go_memstats_stack_inuse_bytes", "Heap bytes used for goroutine stacks"},
	{"/memory/classes/total:bytes", "go_memstats_sys_bytes", "Total bytes obtained from the OS"},
	{"/gc/cycles/total:gc-cycles", "go_gc_cycles_total", "Total number of completed GC cycles"},
	{"/gc/heap/objects:objects", "go_memstats_heap_objects", "Number of live heap objects"},
	{"/cpu/classes/gc/total:cpu-seconds", "go_gc_cpu_seconds_total", "CPU seconds spent in the garbage collector"},
}

// RuntimeCollector samples Go runtime metrics into the registry.
type RuntimeCollector struct {
	samples []rtmetrics.Sample
	gauges  []*Gauge

	uptime    *Gauge
	startTime time.Time
}

// NewRuntimeCollector registers the runtime gauges. The uptimeGauge parameter
// should be the UptimeSeconds gauge from defaults.
func NewRuntimeCollector(r *Registry, uptimeGauge *Gauge) *RuntimeCollector {
	rc := &RuntimeCollector{
		samples:   make([]rtmetrics.Sample, len(runtimeSamples)),
		gauges:    make([]*Gauge, len(runtimeSamples)),
		uptime:    uptimeGauge,
		startTime: time.Now(),
	}
	for i, s := range runtimeSamples {
		rc.samples[i].Name = s.sample
		rc.gauges[i] = r.NewGauge(s.name, s.help)
	}

	goInfo := r.NewGauge("go_info", "Information about the Go environment", "version")
	if vec, err := goInfo.WithLabels(runtime.Version()); err == nil {
		vec.Set(1)
	}
	return rc
}

// Collect refreshes every runtime gauge with a current sample.
// Call this periodically to keep metrics current.
func (rc *RuntimeCollector) Collect() {
	if rc.uptime != nil {
		_ = rc.uptime.Set(time.Since(rc.startTime).Seconds())
	}

	rtmetrics.Read(rc.samples)
	for i, s := range rc.samples {
		switch s.Value.Kind() {
		case rtmetrics.KindUint64:
			_ = rc.gauges[i].Set(float64(s.Value.Uint64()))
		case rtmetrics.KindFloat64:
			_ = rc.gauges[i].Set(s.Value.Float64())
		default:
			// Histogram-kind samples have no scalar representation.
		}
	}
}

// StartCollector starts a goroutine that periodically collects runtime
// metrics. Returns a stop function to cancel the collection.
func (rc *RuntimeCollector) StartCollector(interval time.Duration) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		rc.Collect()

		for {
			select {
			case <-ticker.C:
				rc.Collect()
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
