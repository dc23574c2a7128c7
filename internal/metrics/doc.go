// Package metrics aggregates request latency and outcome counts for a run.
//
// # Collector
//
// The central [Collector] type is shared by every simulated user:
//
//	collector := metrics.NewCollector()
//
//	// Record a request
//	collector.RecordRequest(latency, err, &metrics.RequestMetadata{
//		Backend:    "maas",
//		StatusCode: 200,
//	})
//
//	// Record the end of one task invocation
//	collector.RecordPass(err)
//
//	// Get aggregated statistics
//	stats := collector.Stats(elapsed)
//
// # Statistics
//
// The [Stats] type reports:
//   - Request counts (total, successes, failures)
//   - Latency percentiles (P50, P90, P95, P99) from an HDR histogram
//   - Requests per second
//   - Status code buckets and a friendly error breakdown
//   - Task invocation counts and their failure causes
//
// # Thread Safety
//
// All Collector methods take a single mutex and are safe to call from
// multiple goroutines.
package metrics
