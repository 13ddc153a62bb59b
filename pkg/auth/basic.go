package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/routing"
)

// DefaultIdentifier is the credential field basic logins are matched against
const DefaultIdentifier = "email"

// ErrInvalidCredentials is returned by verifiers for unknown logins or wrong
// passwords
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials are decoded from a basic Authorization header
type Credentials struct {
	// Identifier names the field Login is matched against, e.g. "email".
	Identifier string
	Login      string
	Password   string
}

// IdentityVerifier checks credentials and returns the principal id
type IdentityVerifier interface {
	Verify(ctx context.Context, creds Credentials) (string, error)
}

// VerifierFunc adapts a function to the IdentityVerifier interface
type VerifierFunc func(ctx context.Context, creds Credentials) (string, error)

// Verify implements IdentityVerifier
func (f VerifierFunc) Verify(ctx context.Context, creds Credentials) (string, error) {
	return f(ctx, creds)
}

// BasicProvider authenticates HTTP basic credentials
type BasicProvider struct {
	Verifier   IdentityVerifier
	Identifier string
}

// NewBasicProvider creates a basic provider. identifier defaults to
// DefaultIdentifier.
func NewBasicProvider(verifier IdentityVerifier, identifier string) *BasicProvider {
	if identifier == "" {
		identifier = DefaultIdentifier
	}
	return &BasicProvider{Verifier: verifier, Identifier: identifier}
}

// Authenticate implements Provider
func (p *BasicProvider) Authenticate(ctx context.Context, r *http.Request, _ *routing.Route) (*Principal, error) {
	login, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrNoCredentials
	}

	id, err := p.Verifier.Verify(ctx, Credentials{Identifier: p.Identifier, Login: login, Password: password})
	switch {
	case err == nil && id != "":
		return &Principal{ID: id}, nil
	case err == nil, errors.Is(err, ErrInvalidCredentials):
		return nil, apierrors.Unauthorized("Invalid authentication credentials.").
			WithHeader("WWW-Authenticate", `Basic realm="API"`)
	default:
		return nil, err
	}
}

// StaticVerifier verifies against a fixed set of logins. Passwords are kept
// as SHA-256 digests and compared in constant time.
type StaticVerifier struct {
	users map[string]staticUser
}

type staticUser struct {
	id     string
	digest [sha256.Size]byte
}

// NewStaticVerifier creates an empty verifier
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{users: make(map[string]staticUser)}
}

// Add registers login with its password and principal id
func (v *StaticVerifier) Add(login, password, id string) *StaticVerifier {
	v.users[login] = staticUser{id: id, digest: sha256.Sum256([]byte(password))}
	return v
}

// Verify implements IdentityVerifier
func (v *StaticVerifier) Verify(_ context.Context, creds Credentials) (string, error) {
	user, ok := v.users[creds.Login]
	digest := sha256.Sum256([]byte(creds.Password))
	if !ok || subtle.ConstantTimeCompare(digest[:], user.digest[:]) != 1 {
		return "", ErrInvalidCredentials
	}
	return user.id, nil
}
