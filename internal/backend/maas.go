package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/servebench/servebench/internal/auth"
	"github.com/servebench/servebench/internal/config"
)

// globalLocation selects the region-less managed API host.
const globalLocation = "global"

type maasBackend struct {
	base     string
	path     string
	provider auth.Provider
	genCfg   generationConfig
}

type maasRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64        `json:"temperature"`
	ThinkingConfig  thinkingConfig `json:"thinkingConfig"`
	MaxOutputTokens int            `json:"maxOutputTokens"`
}

// thinkingConfig always carries a zero budget. --thinking is parsed but never
// changes the request.
type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

func newMaaS(cfg *config.Config, provider auth.Provider) *maasBackend {
	defaultBase := fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	if cfg.Location == globalLocation {
		defaultBase = "https://aiplatform.googleapis.com"
	}
	return &maasBackend{
		base: baseOrOverride(cfg.Host, defaultBase),
		path: fmt.Sprintf("/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			url.PathEscape(cfg.ProjectID), url.PathEscape(cfg.Location), url.PathEscape(cfg.Model)),
		provider: provider,
		genCfg: generationConfig{
			Temperature:     cfg.Temperature,
			ThinkingConfig:  thinkingConfig{ThinkingBudget: 0},
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	}
}

func (b *maasBackend) Name() string    { return string(config.BackendMaaS) }
func (b *maasBackend) BaseURL() string { return b.base }
func (b *maasBackend) Path() string    { return b.path }

func (b *maasBackend) Authorize(ctx context.Context, req *http.Request) error {
	return b.provider.InjectHeader(ctx, req)
}

func (b *maasBackend) Body(instruction string) any {
	return maasRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: instruction}}}},
		GenerationConfig: b.genCfg,
	}
}
