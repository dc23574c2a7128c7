package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// envBindings maps config keys to the environment variables that may supply them.
var envBindings = map[string]string{
	"backend":        "SERVEBENCH_BACKEND",
	"host":           "SERVEBENCH_HOST",
	"api_key":        "API_KEY",
	"project_id":     "PROJECT_ID",
	"project_number": "PROJECT_NUMBER",
	"location":       "LOCATION",
	"endpoint_id":    "ENDPOINT_ID",
	"access_token":   "ACCESS_TOKEN",
	"log_level":      "LOG_LEVEL",
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, the local settings file, the
// environment and an optional configuration file to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	envFile := flagSet.Lookup("env-file").Value.String()
	if err := loadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("env file %s: %w", envFile, err)
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Backend:         BackendMaaS,
		Location:        DefaultLocation,
		MaxOutputTokens: 1000,
		Users:           1,
		Timeout:         60 * time.Second,
		Arrival:         ArrivalConfig{Model: ArrivalModelUniform},
		Output:          OutputText,
		LogLevel:        "info",
		EnvFile:         envFile,
		ConfigFile:      configPath,
		Tracing:         TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyEnvironment(cfg); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Backend = BackendKind(strings.ToLower(strings.TrimSpace(string(cfg.Backend))))
	cfg.Host = strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	cfg.DataPath = strings.TrimSpace(cfg.DataPath)
	if cfg.Arrival.Model == "" {
		cfg.Arrival.Model = ArrivalModelUniform
	}

	return cfg, nil
}

// loadDotEnv loads variables from the local settings file. Missing files are
// ignored and variables that are already set are left untouched.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// applyEnvironment lets the bound environment variables override config file values.
func applyEnvironment(cfg *Config) error {
	envViper := viper.New()
	settings := map[string]interface{}{}
	for key, env := range envBindings {
		if err := envViper.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
		if val := strings.TrimSpace(envViper.GetString(key)); val != "" {
			settings[key] = val
		}
	}
	return applyConfigSettings(cfg, settings)
}

// applyConfigSettings applies settings from a config file or the environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringSettings := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.Host, []string{"host"}},
		{&cfg.DataPath, []string{"data", "data_path", "data-path"}},
		{&cfg.Model, []string{"model"}},
		{&cfg.APIKey, []string{"api_key", "api-key", "apikey"}},
		{&cfg.ProjectID, []string{"project_id", "project-id", "projectid"}},
		{&cfg.ProjectNumber, []string{"project_number", "project-number", "projectnumber"}},
		{&cfg.Location, []string{"location"}},
		{&cfg.EndpointID, []string{"endpoint_id", "endpoint-id", "endpointid"}},
		{&cfg.AccessToken, []string{"access_token", "access-token", "accesstoken"}},
		{&cfg.LogLevel, []string{"log_level", "log-level", "loglevel"}},
	}
	for _, s := range stringSettings {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = strings.TrimSpace(val)
	}

	intSettings := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Thinking, []string{"thinking"}},
		{&cfg.MaxOutputTokens, []string{"max_output_tokens", "max-output-tokens", "maxoutputtokens"}},
		{&cfg.Users, []string{"users", "concurrency"}},
		{&cfg.Iterations, []string{"iterations"}},
		{&cfg.Rate, []string{"rate"}},
	}
	for _, s := range intSettings {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = val
	}

	if raw, ok := lookupSetting(settings, "backend"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("backend: %w", err)
		}
		cfg.Backend = BackendKind(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "temperature"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("temperature: %w", err)
		}
		cfg.Temperature = val
	}

	if raw, ok := lookupSetting(settings, "spawn_rate", "spawn-rate", "spawnrate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("spawn_rate: %w", err)
		}
		cfg.SpawnRate = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "arrival", "arrival_model", "arrival-model", "arrivalmodel"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "no_progress", "no-progress", "noprogress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("no_progress: %w", err)
		}
		cfg.NoProgress = val
	}

	if raw, ok := lookupSetting(settings, "log_errors", "log-errors", "logerrors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	if v, ok := value.(string); ok {
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(v)))}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	raw, ok := lookupSetting(entry, "model")
	if !ok {
		return ArrivalConfig{}, fmt.Errorf("model field is required")
	}
	val, err := asString(raw)
	if err != nil {
		return ArrivalConfig{}, fmt.Errorf("model: %w", err)
	}
	return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "sample-rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "service_name", "service-name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
