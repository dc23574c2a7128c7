package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestMetadata describes where a recorded request went.
type RequestMetadata struct {
	Backend    string
	StatusCode int // 0 when no response was received
}

// Collector records per-request and per-pass metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
	statusCodes  map[string]int64

	passes       int64
	failedPasses int64
	passErrors   map[string]int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// Millisecond fields for the JSON and YAML reports.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	StatusBuckets map[string]int `json:"status_buckets,omitempty" yaml:"status_buckets,omitempty"`
	Errors        map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`

	Passes       int64          `json:"passes" yaml:"passes"`
	FailedPasses int64          `json:"failed_passes" yaml:"failed_passes"`
	PassErrors   map[string]int `json:"pass_errors,omitempty" yaml:"pass_errors,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 10 minutes with 3 significant figures.
	h := hdrhistogram.New(1, 600_000_000, 3)
	return &Collector{
		hist:         h,
		errorsByType: make(map[string]int64),
		statusCodes:  make(map[string]int64),
		passErrors:   make(map[string]int64),
	}
}

// RecordRequest records a single request's latency, outcome and status code.
func (c *Collector) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if meta != nil && meta.StatusCode > 0 {
		c.statusCodes[strconv.Itoa(meta.StatusCode)]++
	} else if err != nil {
		c.statusCodes[NoResponseBucket]++
	}

	if err == nil {
		c.successes++
	} else {
		c.failures++
		c.errorsByType[ErrorName(err)]++
	}
}

// RecordPass records the outcome of one task invocation.
func (c *Collector) RecordPass(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.passes++
	if err != nil {
		c.failedPasses++
		c.passErrors[ErrorName(err)]++
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:        total,
		Successes:    c.successes,
		Failures:     c.failures,
		MinLatency:   c.minLatency,
		MaxLatency:   c.maxLatency,
		Passes:       c.passes,
		FailedPasses: c.failedPasses,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P95Latency = time.Duration(c.hist.ValueAtQuantile(95)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P95LatencyMs = toMillis(stats.P95Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	stats.StatusBuckets = copyCounts(c.statusCodes)
	stats.Errors = copyCounts(c.errorsByType)
	stats.PassErrors = copyCounts(c.passErrors)

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func copyCounts(src map[string]int64) map[string]int {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = int(v)
	}
	return out
}
