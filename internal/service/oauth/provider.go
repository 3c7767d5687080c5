// internal/service/oauth/provider.go
package oauth

import (
	"context"
	"net/http"

	"accesscore-service/internal/domain/oauth"

	"golang.org/x/oauth2"
)

// Provider is one configured external identity provider. Implementations
// own the provider-specific endpoints and the mapping of its payloads
// into the normalized identity shape.
type Provider interface {
	Name() string
	OAuthConfig() *oauth2.Config

	// Identity fetches and normalizes the user profile for the token.
	Identity(ctx context.Context, client *http.Client, token *oauth2.Token) (*oauth.NormalizedIdentity, error)

	// SupportsRefresh reports whether the provider's protocol offers
	// refresh tokens at all.
	SupportsRefresh() bool

	// Revoke invalidates the token at the provider, or returns
	// xerrors.ErrUnsupportedOperation where the protocol has no
	// revocation endpoint.
	Revoke(ctx context.Context, client *http.Client, token string) error
}

// ProviderConfig is the per-provider piece of application configuration.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}
