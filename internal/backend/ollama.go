package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/servebench/servebench/internal/config"
)

const defaultOllamaBase = "http://localhost:8080"

// ollamaBackend talks to a self-hosted container. The API key travels in the
// query string and no Authorization header is sent.
type ollamaBackend struct {
	base        string
	path        string
	model       string
	temperature float64
	numPredict  int
}

type generateRequest struct {
	Prompt  string          `json:"prompt"`
	Model   string          `json:"model"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

func newOllama(cfg *config.Config) *ollamaBackend {
	path := "/api/generate"
	if cfg.APIKey != "" {
		path += "?" + url.Values{"key": {cfg.APIKey}}.Encode()
	}
	return &ollamaBackend{
		base:        baseOrOverride(cfg.Host, defaultOllamaBase),
		path:        path,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		numPredict:  cfg.MaxOutputTokens,
	}
}

func (b *ollamaBackend) Name() string    { return string(config.BackendOllama) }
func (b *ollamaBackend) BaseURL() string { return b.base }
func (b *ollamaBackend) Path() string    { return b.path }

func (b *ollamaBackend) Authorize(context.Context, *http.Request) error { return nil }

func (b *ollamaBackend) Body(instruction string) any {
	return generateRequest{
		Prompt: instruction,
		Model:  b.model,
		Options: generateOptions{
			Temperature: b.temperature,
			NumPredict:  b.numPredict,
		},
	}
}
