package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/servebench/servebench/internal/metrics"
)

// Report is the end-of-run summary handed to the printers.
type Report struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Backend   string        `json:"backend" yaml:"backend"`
	Model     string        `json:"model,omitempty" yaml:"model,omitempty"`
	Target    string        `json:"target" yaml:"target"`
	Users     int64         `json:"users" yaml:"users"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Stats     metrics.Stats `json:"stats" yaml:"stats"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Backend:           %s\n", r.Backend)
	if r.Model != "" {
		fmt.Fprintf(w, "Model:             %s\n", r.Model)
	}
	fmt.Fprintf(w, "Target:            %s\n", r.Target)
	fmt.Fprintf(w, "Users:             %d\n", r.Users)
	fmt.Fprintf(w, "Iterations:        %d (%d failed)\n", stats.Passes, stats.FailedPasses)
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.StatusBuckets) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range metrics.FlattenStatusBuckets(stats.StatusBuckets) {
			fmt.Fprintf(w, "  %s: %d\n", row.Code, row.Count)
		}
	}
	writeBreakdown(w, "Request Errors:", stats.Errors)
	writeBreakdown(w, "Iteration Errors:", stats.PassErrors)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func writeBreakdown(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] == counts[names[j]] {
			return names[i] < names[j]
		}
		return counts[names[i]] > counts[names[j]]
	})
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %d\n", name, counts[name])
	}
}
