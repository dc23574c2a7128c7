// Package auth supplies bearer tokens for the cloud-hosted backends.
package auth

import (
	"context"
	"net/http"
)

// CloudPlatformScope is the OAuth2 scope requested for Vertex AI calls.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Provider defines the interface for authentication providers that can
// obtain tokens and inject them into HTTP requests.
type Provider interface {
	// Token returns a valid access token, refreshing it first when the
	// cached one has expired.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the Authorization header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}
