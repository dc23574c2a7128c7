package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/servebench/servebench/internal/auth"
	"github.com/servebench/servebench/internal/backend"
	"github.com/servebench/servebench/internal/config"
	"github.com/servebench/servebench/internal/httpclient"
	"github.com/servebench/servebench/internal/instructions"
	"github.com/servebench/servebench/internal/metrics"
	"github.com/servebench/servebench/internal/runner"
)

type capturedRequest struct {
	path          string
	rawQuery      string
	authorization string
	body          map[string]any
}

type recordingServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	status   func(body map[string]any) int
	delay    time.Duration
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		rs.mu.Lock()
		rs.requests = append(rs.requests, capturedRequest{
			path:          r.URL.Path,
			rawQuery:      r.URL.RawQuery,
			authorization: r.Header.Get("Authorization"),
			body:          body,
		})
		statusFn, delay := rs.status, rs.delay
		rs.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		status := http.StatusOK
		if statusFn != nil {
			status = statusFn(body)
		}
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"model overloaded"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) captured() []capturedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]capturedRequest(nil), rs.requests...)
}

func writeInstructions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func newTestTask(t *testing.T, cfg *config.Config, provider auth.Provider) (*predictTask, *metrics.Collector) {
	t.Helper()
	be, err := backend.New(cfg, provider)
	if err != nil {
		t.Fatalf("backend.New() error = %v", err)
	}
	builder, err := httpclient.NewRequestBuilder(be)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	collector := metrics.NewCollector()
	return &predictTask{
		dataPath:  cfg.DataPath,
		backend:   be.Name(),
		client:    httpclient.NewClient(5 * time.Second),
		builder:   builder,
		collector: collector,
	}, collector
}

func maasConfig(host, data string) *config.Config {
	return &config.Config{
		Backend:         config.BackendMaaS,
		Host:            host,
		DataPath:        data,
		Model:           "gemini-test",
		ProjectID:       "p1",
		Location:        "us-central1",
		Temperature:     0.3,
		MaxOutputTokens: 1000,
	}
}

// firstPartText digs contents[0].parts[0].text out of a decoded maas body.
func firstPartText(body map[string]any) string {
	contents, _ := body["contents"].([]any)
	if len(contents) == 0 {
		return ""
	}
	entry, _ := contents[0].(map[string]any)
	parts, _ := entry["parts"].([]any)
	if len(parts) == 0 {
		return ""
	}
	p, _ := parts[0].(map[string]any)
	text, _ := p["text"].(string)
	return text
}

func TestPredictTaskMaaSPostsEachInstructionInOrder(t *testing.T) {
	srv := newRecordingServer(t)
	data := writeInstructions(t, "{\"instruction\": \"hello\"}\n{\"instruction\": \"world\"}\n")
	task, collector := newTestTask(t, maasConfig(srv.URL, data), auth.NewStaticTokenProvider("tok"))

	if err := task.Do(context.Background()); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	reqs := srv.captured()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	wantPath := "/v1/projects/p1/locations/us-central1/publishers/google/models/gemini-test:generateContent"
	for i, want := range []string{"hello", "world"} {
		if reqs[i].path != wantPath {
			t.Errorf("request %d path = %q, want %q", i, reqs[i].path, wantPath)
		}
		if got := firstPartText(reqs[i].body); got != want {
			t.Errorf("request %d text = %q, want %q", i, got, want)
		}
		if reqs[i].authorization != "Bearer tok" {
			t.Errorf("request %d Authorization = %q", i, reqs[i].authorization)
		}
		genCfg, _ := reqs[i].body["generationConfig"].(map[string]any)
		if genCfg["temperature"] != 0.3 || genCfg["maxOutputTokens"] != float64(1000) {
			t.Errorf("request %d generationConfig = %v", i, genCfg)
		}
	}

	stats := collector.Stats(time.Second)
	if stats.Total != 2 || stats.Successes != 2 {
		t.Errorf("Total/Successes = %d/%d, want 2/2", stats.Total, stats.Successes)
	}
	if stats.Passes != 1 || stats.FailedPasses != 0 {
		t.Errorf("Passes/FailedPasses = %d/%d, want 1/0", stats.Passes, stats.FailedPasses)
	}
	if stats.StatusBuckets["200"] != 2 {
		t.Errorf("StatusBuckets = %v, want 2 x 200", stats.StatusBuckets)
	}
}

func TestPredictTaskOllamaUsesKeyWithoutAuthorization(t *testing.T) {
	srv := newRecordingServer(t)
	data := writeInstructions(t, "{\"instruction\": \"a\"}\n{\"instruction\": \"b\"}\n{\"instruction\": \"c\"}\n")
	task, _ := newTestTask(t, &config.Config{
		Backend:         config.BackendOllama,
		Host:            srv.URL,
		DataPath:        data,
		Model:           "llama3",
		APIKey:          "k1",
		MaxOutputTokens: 64,
	}, nil)

	if err := task.Do(context.Background()); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	reqs := srv.captured()
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3", len(reqs))
	}
	for i, req := range reqs {
		if req.path != "/api/generate" || req.rawQuery != "key=k1" {
			t.Errorf("request %d URL = %s?%s", i, req.path, req.rawQuery)
		}
		if req.authorization != "" {
			t.Errorf("request %d carried Authorization %q", i, req.authorization)
		}
		if req.body["model"] != "llama3" {
			t.Errorf("request %d model = %v, want llama3", i, req.body["model"])
		}
	}
}

func TestPredictTaskMissingDataFile(t *testing.T) {
	srv := newRecordingServer(t)
	missing := filepath.Join(t.TempDir(), "absent.jsonl")
	task, collector := newTestTask(t, maasConfig(srv.URL, missing), auth.NewStaticTokenProvider("tok"))

	err := task.Do(context.Background())
	var dataErr *instructions.DataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("Do() error = %v, want DataError", err)
	}
	if n := len(srv.captured()); n != 0 {
		t.Errorf("got %d requests, want none", n)
	}
	stats := collector.Stats(time.Second)
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.FailedPasses != 1 || stats.PassErrors["Data file error"] != 1 {
		t.Errorf("FailedPasses = %d, PassErrors = %v", stats.FailedPasses, stats.PassErrors)
	}
}

func TestPredictTaskMalformedLineStopsPass(t *testing.T) {
	srv := newRecordingServer(t)
	data := writeInstructions(t, "{\"instruction\": \"first\"}\n{oops\n{\"instruction\": \"never\"}\n")
	task, collector := newTestTask(t, maasConfig(srv.URL, data), auth.NewStaticTokenProvider("tok"))

	err := task.Do(context.Background())
	var dataErr *instructions.DataError
	if !errors.As(err, &dataErr) || dataErr.Line != 2 {
		t.Fatalf("Do() error = %v, want DataError on line 2", err)
	}
	if n := len(srv.captured()); n != 1 {
		t.Errorf("got %d requests, want 1", n)
	}
	if stats := collector.Stats(time.Second); stats.Total != 1 || stats.Failures != 0 {
		t.Errorf("Total/Failures = %d/%d, want 1/0", stats.Total, stats.Failures)
	}
}

func TestPredictTaskErrorStatusContinuesPass(t *testing.T) {
	srv := newRecordingServer(t)
	srv.status = func(body map[string]any) int {
		if firstPartText(body) == "bad" {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}
	data := writeInstructions(t, "{\"instruction\": \"bad\"}\n{\"instruction\": \"good\"}\n")
	task, collector := newTestTask(t, maasConfig(srv.URL, data), auth.NewStaticTokenProvider("tok"))

	err := task.Do(context.Background())
	var reqErr *runner.RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Do() error = %v, want HTTP 500 RequestError", err)
	}
	if reqErr.Message() != "model overloaded" {
		t.Errorf("Message() = %q, want model overloaded", reqErr.Message())
	}
	if n := len(srv.captured()); n != 2 {
		t.Errorf("got %d requests, want 2", n)
	}

	stats := collector.Stats(time.Second)
	if stats.Successes != 1 || stats.Failures != 1 {
		t.Errorf("Successes/Failures = %d/%d, want 1/1", stats.Successes, stats.Failures)
	}
	if stats.StatusBuckets["500"] != 1 || stats.Errors["HTTP 500 response"] != 1 {
		t.Errorf("StatusBuckets = %v, Errors = %v", stats.StatusBuckets, stats.Errors)
	}
}

func TestPredictTaskAuthErrorEndsPass(t *testing.T) {
	srv := newRecordingServer(t)
	data := writeInstructions(t, "{\"instruction\": \"a\"}\n{\"instruction\": \"b\"}\n")
	task, collector := newTestTask(t, maasConfig(srv.URL, data), auth.NewStaticTokenProvider("  "))

	var logged []error
	task.failures = failureFunc(func(_ context.Context, err error) { logged = append(logged, err) })

	err := task.Do(context.Background())
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Do() error = %v, want auth.Error", err)
	}
	if n := len(srv.captured()); n != 0 {
		t.Errorf("got %d requests, want none", n)
	}
	stats := collector.Stats(time.Second)
	if stats.Failures != 1 || stats.Errors["Credential error"] != 1 {
		t.Errorf("Failures = %d, Errors = %v, want one credential error", stats.Failures, stats.Errors)
	}
	if stats.StatusBuckets["no response"] != 1 {
		t.Errorf("StatusBuckets = %v, want one no-response entry", stats.StatusBuckets)
	}
	if len(logged) != 1 {
		t.Errorf("logged %d failures, want 1", len(logged))
	}
}

func TestPredictTaskCancelledBeforeStart(t *testing.T) {
	srv := newRecordingServer(t)
	data := writeInstructions(t, "{\"instruction\": \"a\"}\n")
	task, collector := newTestTask(t, maasConfig(srv.URL, data), auth.NewStaticTokenProvider("tok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := task.Do(ctx); err != nil {
		t.Fatalf("Do() error = %v, want nil for an interrupted pass", err)
	}
	if n := len(srv.captured()); n != 0 {
		t.Errorf("got %d requests, want none", n)
	}
	if stats := collector.Stats(time.Second); stats.Passes != 0 || stats.Total != 0 {
		t.Errorf("Passes/Total = %d/%d, want 0/0", stats.Passes, stats.Total)
	}
}

type failureFunc func(ctx context.Context, err error)

func (f failureFunc) LogFailure(ctx context.Context, err error) { f(ctx, err) }
