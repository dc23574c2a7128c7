package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type discoverFunc func(ctx context.Context, scopes ...string) (oauth2.TokenSource, error)

// GoogleProvider serves tokens from Application Default Credentials.
// Credentials are discovered on first use. The token is cached and refreshed
// only once it is no longer valid; concurrent callers share one refresh.
type GoogleProvider struct {
	scopes   []string
	discover discoverFunc

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewGoogleProvider creates a provider backed by ambient Google credentials.
// With no scopes the cloud-platform scope is requested.
func NewGoogleProvider(scopes ...string) *GoogleProvider {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	return &GoogleProvider{
		scopes:   scopes,
		discover: findDefaultSource,
	}
}

// NewTokenSourceProvider wraps an existing token source with the same
// cache-until-expired behaviour as the ambient provider.
func NewTokenSourceProvider(src oauth2.TokenSource) *GoogleProvider {
	return &GoogleProvider{source: oauth2.ReuseTokenSource(nil, src)}
}

func findDefaultSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	return creds.TokenSource, nil
}

func (p *GoogleProvider) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		return p.source, nil
	}
	// The discovered source keeps this context for every later refresh.
	src, err := p.discover(context.WithoutCancel(ctx), p.scopes...)
	if err != nil {
		return nil, &Error{Op: "discover credentials", Err: err}
	}
	p.source = oauth2.ReuseTokenSource(nil, src)
	return p.source, nil
}

// Token returns the cached access token, refreshing it when expired.
func (p *GoogleProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := p.tokenSource(ctx)
	if err != nil {
		return "", err
	}
	tok, err := src.Token()
	if err != nil {
		return "", &Error{Op: "refresh token", Err: err}
	}
	if tok.AccessToken == "" {
		return "", &Error{Op: "refresh token", Err: errEmptyToken}
	}
	return tok.AccessToken, nil
}

// InjectHeader sets a Bearer Authorization header on req.
func (p *GoogleProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	return nil
}

// Close is a no-op; the token source holds no long-lived connections.
func (p *GoogleProvider) Close() error {
	return nil
}
