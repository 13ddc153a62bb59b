package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/routing"
)

// ErrInvalidToken is returned by introspectors for unknown, expired or
// revoked tokens
var ErrInvalidToken = errors.New("invalid token")

// TokenIntrospector resolves a bearer token to a principal. scopes are the
// scopes the route requires; introspectors may use them to narrow remote
// lookups, the provider enforces them either way.
type TokenIntrospector interface {
	Introspect(ctx context.Context, token string, scopes []string) (*Principal, error)
}

// BearerProvider authenticates bearer tokens and enforces route scopes
type BearerProvider struct {
	Introspector TokenIntrospector
	// QueryParam, when set, is read when no Authorization header is sent.
	QueryParam string
	// Header, when set, carries the raw token instead of Authorization.
	Header string
}

// APIKeyHeader carries API keys
const APIKeyHeader = "X-API-Key"

// NewBearerProvider creates a bearer provider reading the Authorization
// header and the access_token query parameter
func NewBearerProvider(introspector TokenIntrospector) *BearerProvider {
	return &BearerProvider{Introspector: introspector, QueryParam: "access_token"}
}

// NewAPIKeyProvider creates a provider reading raw keys from the X-API-Key
// header
func NewAPIKeyProvider(introspector TokenIntrospector) *BearerProvider {
	return &BearerProvider{Introspector: introspector, Header: APIKeyHeader}
}

// Authenticate implements Provider
func (p *BearerProvider) Authenticate(ctx context.Context, r *http.Request, route *routing.Route) (*Principal, error) {
	var token string
	if p.Header != "" {
		token = strings.TrimSpace(r.Header.Get(p.Header))
	} else {
		token = bearerToken(r, p.QueryParam)
	}
	if token == "" {
		return nil, ErrNoCredentials
	}

	var required []string
	if route != nil {
		required = route.Scopes()
	}

	principal, err := p.Introspector.Introspect(ctx, token, required)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, apierrors.Unauthorized("Invalid or expired access token.").
				WithHeader("WWW-Authenticate", `Bearer error="invalid_token"`).
				Wrap(err)
		}
		return nil, err
	}
	if principal == nil {
		return nil, apierrors.Unauthorized("Invalid or expired access token.").
			WithHeader("WWW-Authenticate", `Bearer error="invalid_token"`).
			Wrap(ErrInvalidToken)
	}

	if missing := principal.MissingScopes(required); len(missing) > 0 {
		return nil, apierrors.ScopeMismatch(missing)
	}
	return principal, nil
}

func bearerToken(r *http.Request, queryParam string) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if queryParam != "" {
		return r.URL.Query().Get(queryParam)
	}
	return ""
}
