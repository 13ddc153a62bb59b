package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCIntrospector accepts ID tokens issued by an OpenID Connect provider
type OIDCIntrospector struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCIntrospector discovers the provider at issuerURL and verifies
// tokens issued to clientID
func NewOIDCIntrospector(ctx context.Context, issuerURL, clientID string) (*OIDCIntrospector, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return NewOIDCIntrospectorWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCIntrospectorWithVerifier wraps an existing verifier
func NewOIDCIntrospectorWithVerifier(verifier *oidc.IDTokenVerifier) *OIDCIntrospector {
	return &OIDCIntrospector{verifier: verifier}
}

type oidcClaims struct {
	Email  string   `json:"email"`
	Scope  string   `json:"scope"`
	Scopes []string `json:"scp"`
}

// Introspect implements TokenIntrospector
func (o *OIDCIntrospector) Introspect(ctx context.Context, raw string, _ []string) (*Principal, error) {
	idToken, err := o.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidToken, err)
	}

	return &Principal{
		ID:     idToken.Subject,
		Scopes: append(append([]string(nil), claims.Scopes...), strings.Fields(claims.Scope)...),
		Claims: map[string]interface{}{"iss": idToken.Issuer, "email": claims.Email},
	}, nil
}
