package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/servebench/servebench/internal/auth"
	"github.com/servebench/servebench/internal/httpclient"
	"github.com/servebench/servebench/internal/instructions"
	"github.com/servebench/servebench/internal/metrics"
	"github.com/servebench/servebench/internal/runner"
	"github.com/servebench/servebench/internal/tracing"
)

const maxErrorBodyBytes = 1024

// predictTask is one simulated-user iteration: a full pass over the
// instruction file, one POST per instruction, strictly in order.
type predictTask struct {
	dataPath  string
	backend   string
	client    *http.Client
	builder   *httpclient.RequestBuilder
	collector *metrics.Collector
	tracing   *tracing.Provider
	failures  runner.FailureLogger
}

func (t *predictTask) Do(ctx context.Context) error {
	ctx, span := tracing.StartPassSpan(ctx, t.tracing.Tracer(), t.backend, runner.UserID(ctx))
	err := t.pass(ctx)
	if ctx.Err() != nil {
		// Interrupted passes are neither successes nor failures.
		tracing.EndSpan(span, nil, attribute.Bool("servebench.interrupted", true))
		return nil
	}
	tracing.EndSpan(span, err)
	t.collector.RecordPass(err)
	return err
}

func (t *predictTask) pass(ctx context.Context) error {
	var failed error
	for text, err := range instructions.Read(t.dataPath) {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reqErr := t.send(ctx, text)
		if reqErr == nil || ctx.Err() != nil {
			continue
		}
		if t.failures != nil {
			t.failures.LogFailure(ctx, reqErr)
		}
		var authErr *auth.Error
		if errors.As(reqErr, &authErr) {
			return reqErr
		}
		if failed == nil {
			failed = reqErr
		}
	}
	return failed
}

// send posts one instruction and records the outcome unless ctx was
// cancelled while the request was in flight.
func (t *predictTask) send(ctx context.Context, text string) error {
	ctx, span := tracing.StartRequestSpan(ctx, t.tracing.Tracer(), t.backend, t.builder.DisplayTarget())
	meta := &metrics.RequestMetadata{Backend: t.backend}
	start := time.Now()

	resultErr := t.roundTrip(ctx, span, text, meta)
	latency := time.Since(start)

	if ctx.Err() != nil {
		tracing.EndSpan(span, ctx.Err())
		return ctx.Err()
	}
	tracing.EndSpan(span, resultErr, attribute.Int("http.response.status_code", meta.StatusCode))
	t.collector.RecordRequest(latency, resultErr, meta)
	return resultErr
}

func (t *predictTask) roundTrip(ctx context.Context, span trace.Span, text string, meta *metrics.RequestMetadata) error {
	req, err := t.builder.Build(ctx, text)
	if err != nil {
		return err
	}
	if t.tracing.ShouldPropagate() && span.SpanContext().IsValid() {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &runner.RequestError{Err: t.builder.Redact(err)}
	}
	defer resp.Body.Close()
	meta.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_, _ = io.Copy(io.Discard, resp.Body)
		return runner.NewStatusError(resp.StatusCode, snippet)
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return &runner.RequestError{Err: err}
	}
	return nil
}
