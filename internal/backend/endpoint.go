package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/servebench/servebench/internal/auth"
	"github.com/servebench/servebench/internal/config"
)

// chatCompletionsFormat asks the dedicated endpoint to treat the instance as a chat request.
const chatCompletionsFormat = "chatCompletions"

type endpointBackend struct {
	base        string
	path        string
	provider    auth.Provider
	maxTokens   int
	temperature float64
}

type predictRequest struct {
	Instances []chatInstance `json:"instances"`
}

type chatInstance struct {
	RequestFormat string        `json:"@requestFormat"`
	Messages      []chatMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens"`
	Temperature   float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newEndpoint(cfg *config.Config, provider auth.Provider) *endpointBackend {
	return &endpointBackend{
		base: baseOrOverride(cfg.Host, fmt.Sprintf("https://%s.%s-%s.prediction.vertexai.goog",
			cfg.EndpointID, cfg.Location, cfg.ProjectNumber)),
		path: fmt.Sprintf("/v1/projects/%s/locations/%s/endpoints/%s:predict",
			url.PathEscape(cfg.ProjectNumber), url.PathEscape(cfg.Location), url.PathEscape(cfg.EndpointID)),
		provider:    provider,
		maxTokens:   cfg.MaxOutputTokens,
		temperature: cfg.Temperature,
	}
}

func (b *endpointBackend) Name() string    { return string(config.BackendEndpoint) }
func (b *endpointBackend) BaseURL() string { return b.base }
func (b *endpointBackend) Path() string    { return b.path }

func (b *endpointBackend) Authorize(ctx context.Context, req *http.Request) error {
	return b.provider.InjectHeader(ctx, req)
}

func (b *endpointBackend) Body(instruction string) any {
	return predictRequest{
		Instances: []chatInstance{{
			RequestFormat: chatCompletionsFormat,
			Messages:      []chatMessage{{Role: "user", Content: instruction}},
			MaxTokens:     b.maxTokens,
			Temperature:   b.temperature,
		}},
	}
}
