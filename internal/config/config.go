package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type BackendKind string

const (
	BackendMaaS     BackendKind = "maas"
	BackendEndpoint BackendKind = "endpoint"
	BackendOllama   BackendKind = "ollama"
)

// DefaultLocation is used when neither a flag, the environment nor the settings file names a region.
const DefaultLocation = "us-central1"

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Config is the options bundle shared by every simulated user. It is built
// once by Loader.Load and must not be mutated afterwards.
type Config struct {
	Backend         BackendKind `mapstructure:"backend"`
	Host            string      `mapstructure:"host"`
	DataPath        string      `mapstructure:"data"`
	Model           string      `mapstructure:"model"`
	Thinking        int         `mapstructure:"thinking"`
	APIKey          string      `mapstructure:"api_key"`
	ProjectID       string      `mapstructure:"project_id"`
	ProjectNumber   string      `mapstructure:"project_number"`
	Location        string      `mapstructure:"location"`
	EndpointID      string      `mapstructure:"endpoint_id"`
	Temperature     float64     `mapstructure:"temperature"`
	MaxOutputTokens int         `mapstructure:"max_output_tokens"`
	AccessToken     string      `mapstructure:"access_token"`

	Users      int           `mapstructure:"users"`
	SpawnRate  float64       `mapstructure:"spawn_rate"`
	Iterations int           `mapstructure:"iterations"`
	Duration   time.Duration `mapstructure:"duration"`
	Rate       int           `mapstructure:"rate"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Arrival    ArrivalConfig `mapstructure:"arrival"`

	Output     OutputFormat  `mapstructure:"output"`
	NoProgress bool          `mapstructure:"no_progress"`
	LogErrors  bool          `mapstructure:"log_errors"`
	LogLevel   string        `mapstructure:"log_level"`
	EnvFile    string        `mapstructure:"env_file"`
	ConfigFile string        `mapstructure:"-"`
	Tracing    TracingConfig `mapstructure:"tracing"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// TracingConfig configures OpenTelemetry export. Tracing stays off until an endpoint is set.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   *bool   `mapstructure:"propagate"`
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers go out with each request.
// Propagation defaults to on whenever tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate reports every configuration problem at once. The returned
// warnings are advisory and never block a run.
func (c Config) Validate() (warnings []string, err error) {
	var issues []string

	if strings.TrimSpace(c.DataPath) == "" {
		issues = append(issues, "data is required (use --help for usage information)")
	}

	switch c.Backend {
	case BackendMaaS:
		if strings.TrimSpace(c.ProjectID) == "" {
			issues = append(issues, "project_id is required for the maas backend")
		}
		if strings.TrimSpace(c.Model) == "" {
			issues = append(issues, "model is required for the maas backend")
		}
	case BackendEndpoint:
		if strings.TrimSpace(c.ProjectNumber) == "" {
			issues = append(issues, "project_number is required for the endpoint backend")
		}
		if strings.TrimSpace(c.EndpointID) == "" {
			issues = append(issues, "endpoint_id is required for the endpoint backend")
		}
	case BackendOllama:
		if strings.TrimSpace(c.Model) == "" {
			issues = append(issues, "model is required for the ollama backend")
		}
		if strings.TrimSpace(c.APIKey) == "" {
			warnings = append(warnings, "no api-key configured; requests to the ollama backend will carry no key")
		}
	default:
		issues = append(issues, fmt.Sprintf("backend must be 'maas', 'endpoint', or 'ollama', got %q", c.Backend))
	}

	if c.Backend != BackendOllama && strings.TrimSpace(c.Location) == "" {
		issues = append(issues, "location is required")
	}

	if host := strings.TrimSpace(c.Host); host != "" {
		u, parseErr := url.Parse(host)
		if parseErr != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, fmt.Sprintf("host must be an absolute URL, got %q", host))
		}
	}

	if c.Thinking < 0 {
		issues = append(issues, "thinking must be >= 0")
	}
	if c.Temperature < 0 {
		issues = append(issues, "temperature must be >= 0")
	}
	if c.MaxOutputTokens < 1 {
		issues = append(issues, "max_output_tokens must be >= 1")
	}

	if c.Users < 1 {
		issues = append(issues, "users must be >= 1")
	}
	if c.SpawnRate < 0 {
		issues = append(issues, "spawn_rate must be >= 0")
	}
	if c.Iterations < 0 {
		issues = append(issues, "iterations must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Iterations == 0 && c.Duration == 0 {
		warnings = append(warnings, "neither iterations nor duration is set; the run continues until interrupted")
	}
	if c.Users > 500 {
		warnings = append(warnings, fmt.Sprintf("high user count configured (%d). Ensure the backend quota allows it.", c.Users))
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be 'text', 'json', or 'yaml', got %q", c.Output))
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if strings.TrimSpace(c.AccessToken) != "" && c.Backend != BackendOllama {
		warnings = append(warnings, "using a static access token; it is not refreshed and expires after about an hour")
	}

	if len(issues) > 0 {
		return warnings, ValidationError{issues: issues}
	}
	return warnings, nil
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
