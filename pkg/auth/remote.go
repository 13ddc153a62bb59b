package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/oauth2/clientcredentials"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RemoteConfig configures RFC 7662 token introspection
type RemoteConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	// TokenURL, when set, makes the introspector authenticate with an
	// OAuth2 client-credentials token instead of HTTP basic auth.
	TokenURL string
}

// RemoteIntrospector asks an authorization server about tokens
type RemoteIntrospector struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemoteIntrospector creates an introspector. The client-credentials
// token source is bound to ctx.
func NewRemoteIntrospector(ctx context.Context, cfg RemoteConfig) *RemoteIntrospector {
	client := http.DefaultClient
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(ctx)
	}
	return &RemoteIntrospector{cfg: cfg, client: client}
}

type introspectionResponse struct {
	Active   bool   `json:"active"`
	Subject  string `json:"sub"`
	Username string `json:"username"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	Exp      int64  `json:"exp"`
}

// Introspect implements TokenIntrospector
func (ri *RemoteIntrospector) Introspect(ctx context.Context, token string, _ []string) (*Principal, error) {
	form := url.Values{"token": {token}, "token_type_hint": {"access_token"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ri.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if ri.cfg.TokenURL == "" && ri.cfg.ClientID != "" {
		req.SetBasicAuth(ri.cfg.ClientID, ri.cfg.ClientSecret)
	}

	resp, err := ri.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token introspection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token introspection returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode introspection response: %w", err)
	}
	if !result.Active {
		return nil, fmt.Errorf("%w: token inactive", ErrInvalidToken)
	}

	id := result.Subject
	if id == "" {
		id = result.Username
	}
	if id == "" {
		return nil, fmt.Errorf("%w: introspection returned no subject", ErrInvalidToken)
	}

	return &Principal{
		ID:     id,
		Scopes: strings.Fields(result.Scope),
		Claims: map[string]interface{}{"client_id": result.ClientID, "exp": result.Exp},
	}, nil
}
