package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/apigate/pkg/contextkeys"
	"github.com/platinummonkey/apigate/pkg/routing"
)

// ErrNoCredentials is returned by a provider when the request carries no
// credentials it understands. The authenticator moves on to the next
// provider without recording a failure.
var ErrNoCredentials = errors.New("no credentials for provider")

// Principal is a resolved identity. It is never partially filled: a
// provider returns either a principal with an ID or an error.
type Principal struct {
	ID       string
	Provider string
	Scopes   []string
	// Claims holds provider-specific attributes, e.g. token claims.
	Claims map[string]interface{}
}

// HasScope reports whether the principal was granted scope. "*" grants all.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// MissingScopes returns the required scopes the principal lacks
func (p *Principal) MissingScopes(required []string) []string {
	var missing []string
	for _, scope := range required {
		if !p.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// Provider authenticates a request for a route
type Provider interface {
	Authenticate(ctx context.Context, r *http.Request, route *routing.Route) (*Principal, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, r *http.Request, route *routing.Route) (*Principal, error)

// Authenticate implements Provider
func (f ProviderFunc) Authenticate(ctx context.Context, r *http.Request, route *routing.Route) (*Principal, error) {
	return f(ctx, r, route)
}

// WithPrincipal stores the principal in the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = contextkeys.WithPrincipal(ctx, p)
	return contextkeys.WithUserID(ctx, p.ID)
}

// FromContext returns the authenticated principal, nil for anonymous requests
func FromContext(ctx context.Context) *Principal {
	p, _ := contextkeys.GetPrincipal(ctx).(*Principal)
	return p
}
