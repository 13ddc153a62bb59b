package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/observability"
	"github.com/platinummonkey/apigate/pkg/routing"
)

// Factory builds a provider
type Factory func() (Provider, error)

// Registry maps provider names to factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name
func (reg *Registry) Register(name string, f Factory) error {
	if _, ok := reg.factories[name]; ok {
		return fmt.Errorf("auth provider %q already registered", name)
	}
	reg.factories[name] = f
	return nil
}

// Build creates the provider registered under name
func (reg *Registry) Build(name string) (Provider, error) {
	f, ok := reg.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown auth provider %q", name)
	}
	p, err := f()
	if err != nil {
		return nil, fmt.Errorf("build auth provider %q: %w", name, err)
	}
	return p, nil
}

// Names returns the registered names, sorted
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.factories))
	for name := range reg.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// failedMessage is returned when no provider found credentials at all
const failedMessage = "Failed to authenticate because of bad credentials or an invalid authorization header."

// Authenticator runs the providers selected for a route. Providers are
// built once from the registry and shared by all requests.
type Authenticator struct {
	providers map[string]Provider
	defaults  []string
	timeout   time.Duration
	metrics   *observability.Metrics
}

// NewAuthenticator builds every registered provider. defaults is the
// provider order used when a route declares none; timeout bounds each
// provider call.
func NewAuthenticator(reg *Registry, defaults []string, timeout time.Duration, metrics *observability.Metrics) (*Authenticator, error) {
	a := &Authenticator{
		providers: make(map[string]Provider),
		defaults:  append([]string(nil), defaults...),
		timeout:   timeout,
		metrics:   metrics,
	}
	for _, name := range reg.Names() {
		p, err := reg.Build(name)
		if err != nil {
			return nil, err
		}
		a.providers[name] = p
	}
	for _, name := range a.defaults {
		if _, ok := a.providers[name]; !ok {
			return nil, fmt.Errorf("default auth provider %q is not registered", name)
		}
	}
	return a, nil
}

// Authenticate tries the route's providers, or the defaults, in order. The
// first principal wins. Providers without credentials are skipped; when every
// provider fails, the first failure is returned. Provider timeouts fail
// closed with 401.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, route *routing.Route) (*Principal, error) {
	names := a.defaults
	if route != nil {
		if declared := route.Providers(); len(declared) > 0 {
			names = declared
		}
	}

	var first error
	for _, name := range names {
		p, ok := a.providers[name]
		if !ok {
			return nil, fmt.Errorf("route requires unknown auth provider %q", name)
		}

		principal, err := a.try(ctx, p, r, route)
		if err == nil {
			principal.Provider = name
			return principal, nil
		}
		if errors.Is(err, ErrNoCredentials) {
			continue
		}

		a.recordFailure(name)
		if first == nil {
			first = err
		}
	}

	if first != nil {
		return nil, first
	}
	return nil, apierrors.Unauthorized(failedMessage)
}

func (a *Authenticator) try(ctx context.Context, p Provider, r *http.Request, route *routing.Route) (*Principal, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	principal, err := p.Authenticate(ctx, r, route)
	switch {
	case err == nil && (principal == nil || principal.ID == ""):
		return nil, apierrors.Unauthorized(failedMessage)
	case err == nil:
		return principal, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, apierrors.Unauthorized("Authentication timed out.").Wrap(err)
	}
	return nil, err
}

func (a *Authenticator) recordFailure(name string) {
	if a.metrics != nil {
		a.metrics.AuthFailuresTotal.WithLabelValues(name).Inc()
	}
}
