package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var errEmptyToken = errors.New("empty access token")

// StaticTokenProvider returns a token obtained outside the process, such as
// the output of `gcloud auth print-access-token`. It is never refreshed.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider creates a new static token provider with the given token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{
		token: strings.TrimSpace(token),
	}
}

// Token returns the static token immediately without any network calls.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", &Error{Op: "static token", Err: errEmptyToken}
	}
	return p.token, nil
}

// InjectHeader injects the static token into the Authorization header.
func (p *StaticTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Close is a no-op for static token providers.
func (p *StaticTokenProvider) Close() error {
	return nil
}
