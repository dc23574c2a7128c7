package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "servebench",
		Short:         "Replay instructions against model-serving backends and measure latency",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("backend", string(BackendMaaS), "Backend to benchmark: 'maas', 'endpoint', or 'ollama' (env SERVEBENCH_BACKEND)")
	flags.String("host", "", "Base URL override for the backend (env SERVEBENCH_HOST)")
	flags.String("data", "", "Path to the newline-delimited JSON instruction file")
	flags.String("model", "", "Model identifier")
	flags.Int("thinking", 0, "Thinking budget (accepted for compatibility; the managed API request always sends 0)")
	flags.String("api-key", "", "API key for the self-hosted backend (env API_KEY)")
	flags.String("project_id", "", "Cloud project id (env PROJECT_ID)")
	flags.String("project_number", "", "Cloud project number (env PROJECT_NUMBER)")
	flags.String("location", DefaultLocation, "Cloud region (env LOCATION)")
	flags.String("endpoint_id", "", "Dedicated endpoint id (env ENDPOINT_ID)")
	flags.Float64("temperature", 0.0, "Sampling temperature")
	flags.Int("max_output_tokens", 1000, "Maximum number of output tokens")
	flags.String("access-token", "", "Static bearer token instead of application default credentials (env ACCESS_TOKEN)")

	// Load control flags
	flags.IntP("users", "u", 1, "Number of concurrent simulated users")
	flags.Float64("spawn-rate", 0, "Users started per second (0 starts all users at once)")
	flags.IntP("iterations", "n", 0, "Total task invocations across all users (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to run the benchmark (e.g. 30s, 5m)")
	flags.IntP("rate", "r", 0, "Task invocations per second limit (0 means unlimited)")
	flags.Duration("timeout", 60*time.Second, "Per-request timeout")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing task invocations (uniform or poisson)")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: 'text', 'json', or 'yaml'")
	flags.Bool("no-progress", false, "Disable the live progress line")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("log-level", "info", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	flags.String("env-file", ".env", "Local settings file loaded into the environment (missing file is ignored)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint; enables tracing (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of task invocations to sample (0.0-1.0)")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context headers into outgoing requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the environment and the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := map[string]*string{
		"host":           &cfg.Host,
		"data":           &cfg.DataPath,
		"model":          &cfg.Model,
		"api-key":        &cfg.APIKey,
		"project_id":     &cfg.ProjectID,
		"project_number": &cfg.ProjectNumber,
		"location":       &cfg.Location,
		"endpoint_id":    &cfg.EndpointID,
		"access-token":   &cfg.AccessToken,
		"log-level":      &cfg.LogLevel,
		"env-file":       &cfg.EnvFile,
	}
	for name, dst := range stringFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	if fs.Changed("backend") {
		val, err := fs.GetString("backend")
		if err != nil {
			return err
		}
		cfg.Backend = BackendKind(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("thinking") {
		val, err := fs.GetInt("thinking")
		if err != nil {
			return err
		}
		cfg.Thinking = val
	}
	if fs.Changed("temperature") {
		val, err := fs.GetFloat64("temperature")
		if err != nil {
			return err
		}
		cfg.Temperature = val
	}
	if fs.Changed("max_output_tokens") {
		val, err := fs.GetInt("max_output_tokens")
		if err != nil {
			return err
		}
		cfg.MaxOutputTokens = val
	}
	if fs.Changed("users") {
		val, err := fs.GetInt("users")
		if err != nil {
			return err
		}
		cfg.Users = val
	}
	if fs.Changed("spawn-rate") {
		val, err := fs.GetFloat64("spawn-rate")
		if err != nil {
			return err
		}
		cfg.SpawnRate = val
	}
	if fs.Changed("iterations") {
		val, err := fs.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Iterations = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("no-progress") {
		val, err := fs.GetBool("no-progress")
		if err != nil {
			return err
		}
		cfg.NoProgress = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	return nil
}
