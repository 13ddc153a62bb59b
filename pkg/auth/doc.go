// Package auth authenticates API requests against a registry of named
// providers.
//
// # Overview
//
// A Provider inspects a request and returns a Principal, ErrNoCredentials
// when the request carries nothing it understands, or an error. The
// Authenticator tries the providers a route declares (or the configured
// defaults) in order:
//
//	reg := auth.NewRegistry()
//	reg.Register("basic", func() (auth.Provider, error) {
//		return auth.NewBasicProvider(verifier, ""), nil
//	})
//	reg.Register("jwt", func() (auth.Provider, error) {
//		return auth.NewBearerProvider(auth.NewJWTIntrospector(secret, "apigate", "")), nil
//	})
//
//	authn, err := auth.NewAuthenticator(reg, []string{"basic", "jwt"}, 2*time.Second, metrics)
//	principal, err := authn.Authenticate(ctx, r, route)
//
// The first principal wins. When every provider fails the first failure is
// returned; when none found credentials the result is a 401.
//
// # Bearer Tokens
//
// BearerProvider delegates to a TokenIntrospector and enforces the route's
// scopes. Introspectors are provided for HMAC JWTs, OpenID Connect ID
// tokens, RFC 7662 remote introspection and locally issued API keys
// (apg_ prefixed, stored as SHA-256 digests). CachingIntrospector puts an
// expiring LRU in front of any of them.
//
// # Related Packages
//
//   - pkg/routing: routes declare Protected, Scopes and Providers
//   - pkg/dispatch: runs the authenticator while guarding protected routes
//   - pkg/contextkeys: carries the principal through the request context
package auth
