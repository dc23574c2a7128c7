package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/servebench/servebench/internal/metrics"
)

func sampleReport() Report {
	return Report{
		RunID:   "01J0000000000000000000TEST",
		Backend: "maas",
		Model:   "gemini-test",
		Target:  "https://us-central1-aiplatform.googleapis.com/v1/projects/p1/locations/us-central1/publishers/google/models/gemini-test:generateContent",
		Users:   4,
		Stats: metrics.Stats{
			Total:          100,
			Successes:      95,
			Failures:       5,
			RequestsPerSec: 50.0,
			Duration:       2 * time.Second,
			DurationMs:     2000,
			P95LatencyMs:   120,
			Passes:         50,
			FailedPasses:   1,
			StatusBuckets:  map[string]int{"200": 95, "429": 5},
			Errors:         map[string]int{"HTTP 429 response": 5},
			PassErrors:     map[string]int{"Data file error": 1},
		},
	}
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport())

	output := buf.String()
	for _, want := range []string{
		"Total Requests:    100",
		"Successful:        95",
		"Backend:           maas",
		"Iterations:        50 (1 failed)",
		"429: 5",
		"HTTP 429 response: 5",
		"Data file error: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Index(output, "200: 95") > strings.Index(output, "429: 5") {
		t.Errorf("status codes should be ordered by count")
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["backend"] != "maas" || parsed["run_id"] == "" {
		t.Errorf("unexpected header fields: %v", parsed)
	}
	stats, ok := parsed["stats"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected stats object, got %v", parsed["stats"])
	}
	if stats["total"] != float64(100) || stats["p95_latency_ms"] != float64(120) {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintYAMLReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintYAMLReport failed: %v", err)
	}

	var parsed struct {
		Backend string `yaml:"backend"`
		Stats   struct {
			Total         int            `yaml:"total"`
			FailedPasses  int            `yaml:"failed_passes"`
			StatusBuckets map[string]int `yaml:"status_buckets"`
		} `yaml:"stats"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if parsed.Backend != "maas" || parsed.Stats.Total != 100 || parsed.Stats.FailedPasses != 1 {
		t.Errorf("unexpected YAML report: %+v", parsed)
	}
	if parsed.Stats.StatusBuckets["429"] != 5 {
		t.Errorf("expected status bucket 429 in YAML, got %v", parsed.Stats.StatusBuckets)
	}
}
