package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/apigate/pkg/accept"
	"github.com/platinummonkey/apigate/pkg/auth"
	"github.com/platinummonkey/apigate/pkg/config"
	"github.com/platinummonkey/apigate/pkg/content"
	"github.com/platinummonkey/apigate/pkg/dispatch"
	"github.com/platinummonkey/apigate/pkg/format"
	"github.com/platinummonkey/apigate/pkg/httputil"
	"github.com/platinummonkey/apigate/pkg/observability"
	"github.com/platinummonkey/apigate/pkg/response"
	"github.com/platinummonkey/apigate/pkg/routing"
	"github.com/platinummonkey/apigate/pkg/throttle"
	"github.com/platinummonkey/apigate/pkg/transformer"
)

// app is the wired API: dispatcher plus the HTTP middleware around it
type app struct {
	dispatcher *dispatch.Dispatcher
	handler    http.Handler
	api        *sampleAPI
}

func newApp(ctx context.Context, cfg *config.Config, store throttle.Store, logger *observability.Logger, metrics *observability.Metrics) (*app, error) {
	api := &sampleAPI{users: newUserStore(), keys: auth.NewKeyStore()}

	providers, err := buildProviders(ctx, cfg.Auth, api, metrics)
	if err != nil {
		return nil, err
	}
	authenticator, err := auth.NewAuthenticator(providers, cfg.Auth.Providers, cfg.Auth.Timeout, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build authenticator: %w", err)
	}

	chain, err := buildChain(cfg.RateLimit.Throttles)
	if err != nil {
		return nil, err
	}

	routes := routing.NewRegistry()
	if err := api.register(routes); err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	formats := format.Defaults(cfg.API.CallbackParam).Only(cfg.API.Formats...)

	exceptions := &dispatch.ExceptionHandlers{}
	exceptions.Register(dispatch.HandlerFor(func(_ context.Context, _ *http.MaxBytesError) interface{} {
		return response.New(content.F("message", "Request body too large."), http.StatusRequestEntityTooLarge)
	}))

	d, err := dispatch.New(dispatch.Options{
		Registry:      routes,
		Parser:        accept.NewParser(cfg.API.Vendor, cfg.API.DefaultVersion, cfg.API.DefaultFormat),
		Pipeline:      response.NewPipeline(transformer.NewFactory(), formats, cfg.API.Conditional),
		Authenticator: authenticator,
		Throttles:     chain,
		Limiter:       throttle.NewLimiter(store, cfg.RateLimit.StoreTimeout, metrics),
		Exceptions:    exceptions,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}
	api.dispatcher = d

	middlewares := []func(http.Handler) http.Handler{
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "apigate") },
		observability.HTTPMetricsMiddleware(metrics),
		handlers.ProxyHeaders,
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		middlewares = append(middlewares, cors.New(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{"HEAD", "GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-None-Match", auth.APIKeyHeader},
			ExposedHeaders: []string{"ETag", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", httputil.RequestIDHeader},
		}).Handler)
	}
	middlewares = append(middlewares,
		handlers.CompressHandler,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)

	return &app{
		dispatcher: d,
		handler:    httputil.Chain(middlewares...)(d),
		api:        api,
	}, nil
}

// buildProviders registers the auth providers that are configured. The
// basic and apikey providers are always available.
func buildProviders(ctx context.Context, cfg config.AuthConfig, api *sampleAPI, metrics *observability.Metrics) (*auth.Registry, error) {
	reg := auth.NewRegistry()

	verifier := auth.NewStaticVerifier()
	for _, entry := range cfg.BasicUsers {
		if login, password, principal, ok := config.SplitBasicUser(entry); ok {
			verifier.Add(login, password, principal)
		}
	}
	if err := reg.Register("basic", func() (auth.Provider, error) {
		return auth.NewBasicProvider(verifier, cfg.BasicIdentifier), nil
	}); err != nil {
		return nil, err
	}

	if err := reg.Register("apikey", func() (auth.Provider, error) {
		return auth.NewAPIKeyProvider(api.keys), nil
	}); err != nil {
		return nil, err
	}

	if cfg.JWTSecret != "" {
		api.tokens = auth.NewJWTIntrospector([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience)
		if err := reg.Register("jwt", func() (auth.Provider, error) {
			return auth.NewBearerProvider(api.tokens), nil
		}); err != nil {
			return nil, err
		}
	}

	if cfg.OIDCIssuer != "" {
		if err := reg.Register("oidc", func() (auth.Provider, error) {
			introspector, err := auth.NewOIDCIntrospector(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
			if err != nil {
				return nil, err
			}
			return auth.NewBearerProvider(auth.NewCachingIntrospector(introspector, cfg.CacheSize, cfg.CacheTTL, metrics)), nil
		}); err != nil {
			return nil, err
		}
	}

	if cfg.IntrospectionURL != "" {
		if err := reg.Register("introspection", func() (auth.Provider, error) {
			introspector := auth.NewRemoteIntrospector(ctx, auth.RemoteConfig{
				Endpoint:     cfg.IntrospectionURL,
				ClientID:     cfg.IntrospectionClientID,
				ClientSecret: cfg.IntrospectionClientSecret,
				TokenURL:     cfg.IntrospectionTokenURL,
			})
			return auth.NewBearerProvider(auth.NewCachingIntrospector(introspector, cfg.CacheSize, cfg.CacheTTL, metrics)), nil
		}); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func buildChain(throttles []config.ThrottleConfig) (*throttle.Chain, error) {
	chain, err := throttle.NewChain()
	if err != nil {
		return nil, err
	}
	for _, t := range throttles {
		var match throttle.Matcher
		switch t.Match {
		case "authenticated":
			match = throttle.Authenticated()
		case "unauthenticated":
			match = throttle.Unauthenticated()
		default:
			match = throttle.Always()
		}
		if err := chain.Add(&throttle.Throttle{ID: t.ID, Limit: t.Limit, Window: t.Window, Match: match}); err != nil {
			return nil, fmt.Errorf("invalid throttle %s: %w", t.ID, err)
		}
	}
	return chain, nil
}
