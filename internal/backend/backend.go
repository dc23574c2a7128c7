// Package backend shapes prediction requests for each supported serving stack.
//
// A Backend knows where its requests go, how they are authorized and what the
// JSON body looks like. Request building and sending live in httpclient.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/servebench/servebench/internal/auth"
	"github.com/servebench/servebench/internal/config"
)

// Backend describes one model-serving target.
type Backend interface {
	// Name is the backend kind, e.g. "maas".
	Name() string
	// BaseURL is the scheme and host requests are sent to.
	BaseURL() string
	// Path is the request path, including any query string.
	Path() string
	// Authorize adds credentials to req.
	Authorize(ctx context.Context, req *http.Request) error
	// Body returns the JSON-serialisable request body for one instruction.
	Body(instruction string) any
}

// ErrMissingProvider is returned when a cloud backend is built without credentials.
var ErrMissingProvider = errors.New("backend requires a credential provider")

// New selects the implementation for cfg.Backend. The provider is required
// for the maas and endpoint backends and ignored for ollama.
func New(cfg *config.Config, provider auth.Provider) (Backend, error) {
	if cfg == nil {
		return nil, errors.New("backend: nil config")
	}
	var missing []string
	require := func(name, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}

	switch cfg.Backend {
	case config.BackendMaaS:
		require("project_id", cfg.ProjectID)
		require("location", cfg.Location)
		require("model", cfg.Model)
		if len(missing) > 0 {
			return nil, missingFields(cfg.Backend, missing)
		}
		if provider == nil {
			return nil, ErrMissingProvider
		}
		return newMaaS(cfg, provider), nil
	case config.BackendEndpoint:
		require("project_number", cfg.ProjectNumber)
		require("location", cfg.Location)
		require("endpoint_id", cfg.EndpointID)
		if len(missing) > 0 {
			return nil, missingFields(cfg.Backend, missing)
		}
		if provider == nil {
			return nil, ErrMissingProvider
		}
		return newEndpoint(cfg, provider), nil
	case config.BackendOllama:
		require("model", cfg.Model)
		if len(missing) > 0 {
			return nil, missingFields(cfg.Backend, missing)
		}
		return newOllama(cfg), nil
	default:
		return nil, fmt.Errorf("backend: unsupported kind %q", cfg.Backend)
	}
}

func missingFields(kind config.BackendKind, fields []string) error {
	return fmt.Errorf("backend %s: missing %s", kind, strings.Join(fields, ", "))
}

// baseOrOverride returns host when set, trimmed of a trailing slash.
func baseOrOverride(host, fallback string) string {
	if h := strings.TrimRight(strings.TrimSpace(host), "/"); h != "" {
		return h
	}
	return fallback
}
