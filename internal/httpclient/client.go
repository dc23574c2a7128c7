package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/servebench/servebench/internal/backend"
)

// UserAgent identifies servebench traffic in backend logs.
const UserAgent = "servebench/1.0"

// redactedValue replaces credential query parameters in DisplayTarget.
const redactedValue = "REDACTED"

// secretParams are query parameters that carry credentials.
var secretParams = []string{"key", "api_key", "apikey"}

type RequestBuilder struct {
	target  string
	display string
	backend backend.Backend
	headers http.Header
}

// NewRequestBuilder resolves the backend's target URL and validates it.
func NewRequestBuilder(be backend.Backend) (*RequestBuilder, error) {
	if be == nil {
		return nil, errors.New("backend cannot be nil")
	}

	target := be.BaseURL() + be.Path()
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid target URL %q: scheme must be http or https", target)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q: missing host", target)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", UserAgent)

	return &RequestBuilder{
		target:  u.String(),
		display: redactURL(u),
		backend: be,
		headers: headers,
	}, nil
}

// Target returns the URL every request is posted to.
func (b *RequestBuilder) Target() string {
	return b.target
}

// DisplayTarget returns Target with credential query values masked. Use it
// wherever the URL is logged, reported or attached to a span.
func (b *RequestBuilder) DisplayTarget() string {
	return b.display
}

// Redact masks the target's credentials inside err when err is a *url.Error
// produced by sending a request from this builder.
func (b *RequestBuilder) Redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) || urlErr.URL != b.target {
		return err
	}
	urlErr.URL = b.display
	return err
}

func redactURL(u *url.URL) string {
	query := u.Query()
	changed := false
	for _, name := range secretParams {
		if _, ok := query[name]; ok {
			query.Set(name, redactedValue)
			changed = true
		}
	}
	if !changed {
		return u.String()
	}
	masked := *u
	masked.RawQuery = query.Encode()
	return masked.String()
}

// Build creates an authorized POST carrying the backend body for instruction.
func (b *RequestBuilder) Build(ctx context.Context, instruction string) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(b.backend.Body(instruction))
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", b.backend.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()

	if err := b.backend.Authorize(ctx, req); err != nil {
		return nil, fmt.Errorf("authorize %s request: %w", b.backend.Name(), err)
	}

	return req, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
