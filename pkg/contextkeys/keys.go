// Package contextkeys provides centralized context key definitions
//
// All context keys shared between packages are defined here so that the
// dispatcher, the auth providers and the observability layer agree on them.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/apigate/pkg/contextkeys"
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal, _ := contextkeys.GetPrincipal(ctx).(*auth.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: dispatch.Dispatcher after the guarding stage
	// Required by: Handlers of protected routes, throttle identity resolution
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// RouteKey contains *routing.Route
	// Set by: dispatch.Dispatcher after a successful match
	// Used by: Handlers, response pipeline, internal sub-requests
	// Type: *routing.Route
	RouteKey Key = "route"

	// DescriptorKey contains accept.Descriptor
	// Set by: dispatch.Dispatcher during the parsing stage
	// Used by: Formatter factories, internal sub-requests
	// Type: accept.Descriptor
	DescriptorKey Key = "accept_descriptor"

	// InternalKey marks a request generated by dispatch.Dispatcher.Internal
	// Type: bool
	InternalKey Key = "internal_request"

	// ConditionalKey overrides the response pipeline's conditional switch
	// Set by: dispatch.Dispatcher from the route, and for internal requests
	// Type: bool
	ConditionalKey Key = "conditional"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated principal ID
	// Set by: dispatch.Dispatcher after authentication
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal retrieves the authenticated principal from context
func GetPrincipal(ctx context.Context) interface{} {
	return ctx.Value(PrincipalKey)
}

// WithRoute adds the matched route to the context
func WithRoute(ctx context.Context, route interface{}) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

// GetRoute retrieves the matched route from context
func GetRoute(ctx context.Context) interface{} {
	return ctx.Value(RouteKey)
}

// WithDescriptor adds the negotiated accept descriptor to the context
func WithDescriptor(ctx context.Context, descriptor interface{}) context.Context {
	return context.WithValue(ctx, DescriptorKey, descriptor)
}

// GetDescriptor retrieves the negotiated accept descriptor from context
func GetDescriptor(ctx context.Context) interface{} {
	return ctx.Value(DescriptorKey)
}

// WithInternal marks the context as belonging to an internal request
func WithInternal(ctx context.Context) context.Context {
	return context.WithValue(ctx, InternalKey, true)
}

// IsInternal reports whether the context belongs to an internal request
func IsInternal(ctx context.Context) bool {
	internal, _ := ctx.Value(InternalKey).(bool)
	return internal
}

// WithConditional overrides ETag handling for the request
func WithConditional(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, ConditionalKey, enabled)
}

// GetConditional returns the conditional override, if one is set
func GetConditional(ctx context.Context) (enabled, ok bool) {
	enabled, ok = ctx.Value(ConditionalKey).(bool)
	return enabled, ok
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
