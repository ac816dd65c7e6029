// Package metrics collects runtime statistics for the uptime monitor.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Check counts and failures per endpoint
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Down/up transitions and accumulated downtime
//   - Check cycle durations and proxy evictions
//
// The collector runs in a dedicated goroutine. Producers use the Record*
// helpers, which never block: when the buffer is full the event is dropped
// and counted.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.RecordCheck("https://example.com", 200, 150*time.Millisecond, 1)
//
//	snapshot := collector.Snapshot()
package metrics
