package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// tokenClaims are the claims accepted in access tokens. Scopes may be sent
// as a space separated "scope" string or a "scopes" list.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scope  string   `json:"scope,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

func (c tokenClaims) scopeList() []string {
	scopes := append([]string(nil), c.Scopes...)
	return append(scopes, strings.Fields(c.Scope)...)
}

// JWTIntrospector validates self-contained HMAC-signed access tokens
type JWTIntrospector struct {
	secret   []byte
	issuer   string
	audience string
	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
	now    func() time.Time
}

// NewJWTIntrospector creates an introspector for tokens signed with secret.
// Empty issuer or audience are not checked.
func NewJWTIntrospector(secret []byte, issuer, audience string) *JWTIntrospector {
	return &JWTIntrospector{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		Leeway:   3 * time.Second,
		now:      time.Now,
	}
}

// Introspect implements TokenIntrospector
func (j *JWTIntrospector) Introspect(_ context.Context, raw string, _ []string) (*Principal, error) {
	var claims tokenClaims
	parser := jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token invalid", ErrInvalidToken)
	}

	now := j.now()
	switch {
	case !claims.VerifyExpiresAt(now.Add(-j.Leeway), true):
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	case !claims.VerifyNotBefore(now.Add(j.Leeway), false):
		return nil, fmt.Errorf("%w: token not valid yet", ErrInvalidToken)
	case j.issuer != "" && !claims.VerifyIssuer(j.issuer, true):
		return nil, fmt.Errorf("%w: wrong issuer", ErrInvalidToken)
	case j.audience != "" && !claims.VerifyAudience(j.audience, true):
		return nil, fmt.Errorf("%w: wrong audience", ErrInvalidToken)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Principal{
		ID:     claims.Subject,
		Scopes: claims.scopeList(),
		Claims: map[string]interface{}{"iss": claims.Issuer, "jti": claims.ID},
	}, nil
}

// Issue signs a token for subject valid for ttl. It is used by the demo
// host and tests.
func (j *JWTIntrospector) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: strings.Join(scopes, " "),
	}
	if j.audience != "" {
		claims.Audience = jwt.ClaimStrings{j.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}
