package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/servebench/servebench/internal/auth"
	"github.com/servebench/servebench/internal/backend"
	"github.com/servebench/servebench/internal/config"
	"github.com/servebench/servebench/internal/httpclient"
	"github.com/servebench/servebench/internal/instructions"
	"github.com/servebench/servebench/internal/logging"
	"github.com/servebench/servebench/internal/metrics"
	"github.com/servebench/servebench/internal/output"
	"github.com/servebench/servebench/internal/runner"
	"github.com/servebench/servebench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return err
	}

	runID := ulid.Make().String()
	logger := logging.New(cfg.LogLevel, stderr).With(
		zap.String("run_id", runID),
		zap.String("backend", string(cfg.Backend)),
	)
	defer func() { _ = logger.Sync() }()
	for _, w := range warnings {
		logger.Warn(w)
	}

	provider := newAuthProvider(cfg)
	if provider != nil {
		defer provider.Close()
	}

	be, err := backend.New(cfg, provider)
	if err != nil {
		return err
	}
	builder, err := httpclient.NewRequestBuilder(be)
	if err != nil {
		return err
	}

	if n, err := instructions.Count(cfg.DataPath); err != nil {
		logger.Warn("instruction file is not readable yet", zap.Error(err))
	} else {
		logger.Info("loaded instructions", zap.String("data", cfg.DataPath), zap.Int("per_iteration", n))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector()
	task := &predictTask{
		dataPath:  cfg.DataPath,
		backend:   be.Name(),
		client:    httpclient.NewClient(cfg.Timeout),
		builder:   builder,
		collector: collector,
		tracing:   tp,
	}
	var wrapped runner.Task = task
	if cfg.LogErrors {
		task.failures = &zapFailureLogger{logger: logger, msg: "request failed"}
		wrapped = runner.WithLogging(task, &zapFailureLogger{logger: logger, msg: "iteration failed"})
	}

	r := runner.New(runner.Options{
		Users:         cfg.Users,
		SpawnRate:     cfg.SpawnRate,
		Iterations:    cfg.Iterations,
		Duration:      cfg.Duration,
		RatePerSecond: cfg.Rate,
		Task:          wrapped,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
	})

	logger.Info("starting run",
		zap.String("target", builder.DisplayTarget()),
		zap.Int("users", cfg.Users),
		zap.Int("max_iterations", cfg.Iterations),
		zap.Duration("duration", cfg.Duration),
	)

	var progress *output.ProgressReporter
	if cfg.Output == config.OutputText && !cfg.NoProgress {
		progress = output.NewProgressReporter(collector, progressInterval, stderr)
		progress.Start()
	}

	startedAt := time.Now()
	result := r.Run(ctx)
	if progress != nil {
		progress.Stop()
	}

	report := output.Report{
		RunID:     runID,
		Backend:   be.Name(),
		Model:     cfg.Model,
		Target:    builder.DisplayTarget(),
		Users:     result.Users,
		StartedAt: startedAt.UTC(),
		Stats:     collector.Stats(result.Duration),
	}
	switch cfg.Output {
	case config.OutputJSON:
		err = output.PrintJSONReport(stdout, report)
	case config.OutputYAML:
		err = output.PrintYAMLReport(stdout, report)
	default:
		output.PrintReport(stdout, report)
	}
	if err != nil {
		return err
	}

	logger.Info("run finished",
		zap.Int64("iterations", report.Stats.Passes),
		zap.Int64("failed_iterations", report.Stats.FailedPasses),
		zap.Int64("requests", report.Stats.Total),
		zap.Int64("failed_requests", report.Stats.Failures),
		zap.Duration("elapsed", result.Duration),
	)

	if report.Stats.Failures > 0 || report.Stats.FailedPasses > 0 {
		return fmt.Errorf("%d requests and %d iterations failed", report.Stats.Failures, report.Stats.FailedPasses)
	}
	return nil
}

// newAuthProvider picks the credential source for the cloud backends. A
// static access token wins over Application Default Credentials.
func newAuthProvider(cfg *config.Config) auth.Provider {
	if cfg.Backend == config.BackendOllama {
		return nil
	}
	if strings.TrimSpace(cfg.AccessToken) != "" {
		return auth.NewStaticTokenProvider(cfg.AccessToken)
	}
	return auth.NewGoogleProvider()
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

type zapFailureLogger struct {
	logger *zap.Logger
	msg    string
}

func (l *zapFailureLogger) LogFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.Int("user", runner.UserID(ctx)), zap.Error(err)}
	var reqErr *runner.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode > 0 {
		fields = append(fields, zap.Int("status", reqErr.StatusCode))
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		fields = append(fields, zap.String("hint", auth.LoginHint))
	}
	logging.WithContext(ctx, l.logger).Warn(l.msg, fields...)
}
