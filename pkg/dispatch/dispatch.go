package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/apigate/pkg/accept"
	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/auth"
	"github.com/platinummonkey/apigate/pkg/contextkeys"
	"github.com/platinummonkey/apigate/pkg/httputil"
	"github.com/platinummonkey/apigate/pkg/observability"
	"github.com/platinummonkey/apigate/pkg/response"
	"github.com/platinummonkey/apigate/pkg/routing"
	"github.com/platinummonkey/apigate/pkg/throttle"
)

// State is a dispatch stage
type State int

// Dispatch stages, in order
const (
	StateParsing State = iota
	StateRouting
	StateGuarding
	StateInvoking
	StateTranslating
	StateDone
)

var stateNames = [...]string{"parsing", "routing", "guarding", "invoking", "translating", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// FallbackFormat is used for error responses when the negotiated format has
// no formatter
const FallbackFormat = "json"

// Authenticator resolves the principal of a protected route
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request, route *routing.Route) (*auth.Principal, error)
}

// Options configures a Dispatcher
type Options struct {
	Registry *routing.Registry
	Parser   *accept.Parser
	Pipeline *response.Pipeline
	// Authenticator guards protected routes. Protected routes fail with 401
	// when it is nil.
	Authenticator Authenticator
	Throttles     *throttle.Chain
	// Limiter counts requests. Throttling is disabled when it is nil.
	Limiter    *throttle.Limiter
	Exceptions *ExceptionHandlers
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Tracer     trace.Tracer
}

// Dispatcher runs requests through parsing, routing, guarding, invoking and
// translating, then hands the result to the response pipeline. It holds no
// per-request state and is safe for concurrent use.
type Dispatcher struct {
	registry      *routing.Registry
	parser        *accept.Parser
	pipeline      *response.Pipeline
	authenticator Authenticator
	throttles     *throttle.Chain
	limiter       *throttle.Limiter
	exceptions    *ExceptionHandlers
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
}

// New creates a dispatcher. Registry, Parser and Pipeline are required.
func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Registry == nil:
		return nil, errors.New("dispatch: route registry is required")
	case opts.Parser == nil:
		return nil, errors.New("dispatch: accept parser is required")
	case opts.Pipeline == nil:
		return nil, errors.New("dispatch: response pipeline is required")
	}

	d := &Dispatcher{
		registry:      opts.Registry,
		parser:        opts.Parser,
		pipeline:      opts.Pipeline,
		authenticator: opts.Authenticator,
		throttles:     opts.Throttles,
		limiter:       opts.Limiter,
		exceptions:    opts.Exceptions,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		tracer:        opts.Tracer,
	}
	if d.logger == nil {
		d.logger = observability.NopLogger()
	}
	if d.tracer == nil {
		d.tracer = observability.Tracer()
	}
	return d, nil
}

// CurrentRoute returns the route being dispatched, nil outside of a dispatch
func CurrentRoute(ctx context.Context) *routing.Route {
	route, _ := contextkeys.GetRoute(ctx).(*routing.Route)
	return route
}

// CurrentDescriptor returns the negotiated Accept descriptor of the request
func CurrentDescriptor(ctx context.Context) (accept.Descriptor, bool) {
	desc, ok := contextkeys.GetDescriptor(ctx).(accept.Descriptor)
	return desc, ok
}

// call is the state of one dispatch
type call struct {
	state   State
	desc    accept.Descriptor
	route   *routing.Route
	headers http.Header
}

// Dispatch runs r and returns the prepared response. Errors carrying an HTTP
// status become error responses; any other error is returned untouched.
func (d *Dispatcher) Dispatch(r *http.Request) (*response.Response, error) {
	ctx, span := d.tracer.Start(r.Context(), "apigate.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
	defer span.End()

	start := time.Now()
	c := &call{}
	resp, err := d.run(ctx, r, c)

	status := http.StatusInternalServerError
	if resp != nil {
		status = resp.Status
	}
	span.SetAttributes(
		attribute.String("apigate.state", c.state.String()),
		attribute.String("apigate.version", c.desc.Version),
		attribute.Int("http.status_code", status),
	)
	if c.route != nil {
		span.SetAttributes(attribute.String("apigate.route", c.route.ID()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if d.metrics != nil {
		d.metrics.DispatchTotal.WithLabelValues(c.desc.Version, strconv.Itoa(status)).Inc()
		d.metrics.DispatchDuration.WithLabelValues(c.desc.Version).Observe(time.Since(start).Seconds())
		if status == http.StatusNotModified {
			d.metrics.NotModifiedTotal.Inc()
		}
	}
	return resp, err
}

func (d *Dispatcher) run(ctx context.Context, r *http.Request, c *call) (*response.Response, error) {
	c.state = StateParsing
	c.desc = d.parser.ParseRequest(r)
	ctx = contextkeys.WithDescriptor(ctx, c.desc)

	ctx, value, err := d.invoke(ctx, r, c)
	if err == nil {
		c.state = StateDone
		var resp *response.Response
		if resp, err = d.prepare(ctx, r, value, c); err == nil {
			return resp, nil
		}
	}

	if contextkeys.IsInternal(ctx) {
		return nil, err
	}
	return d.translate(ctx, r, err, c)
}

// invoke covers routing, guarding and invoking. The returned context
// carries the route and principal for the later stages.
func (d *Dispatcher) invoke(ctx context.Context, r *http.Request, c *call) (context.Context, interface{}, error) {
	c.state = StateRouting
	route, params, err := d.match(ctx, r, c.desc.Version)
	if err != nil {
		return ctx, nil, err
	}
	c.route = route
	ctx = contextkeys.WithRoute(ctx, route)
	if cond := route.Action().Conditional; cond != nil && !contextkeys.IsInternal(ctx) {
		ctx = response.WithConditional(ctx, *cond)
	}

	c.state = StateGuarding
	if ctx, err = d.authenticate(ctx, r, route); err != nil {
		return ctx, nil, err
	}
	if c.headers, err = d.throttle(ctx, r, route); err != nil {
		return ctx, nil, err
	}

	c.state = StateInvoking
	value, err := route.Handle(&routing.Request{
		Request: r.WithContext(ctx),
		Route:   route,
		Params:  params,
		Version: c.desc.Version,
		Format:  c.desc.Format,
	})
	return ctx, value, err
}

// match looks the request up in its version collection, then in the
// non-versioned fallback collection
func (d *Dispatcher) match(ctx context.Context, r *http.Request, version string) (*routing.Route, routing.Params, error) {
	route, params, err := d.registry.Match(r, version)
	if err == nil {
		return route, params, nil
	}
	if !errors.Is(err, routing.ErrRouteNotFound) {
		return nil, nil, err
	}

	route, params, err = d.registry.MatchFallback(r)
	if err != nil {
		if errors.Is(err, routing.ErrRouteNotFound) {
			return nil, nil, apierrors.NotFound("").Wrap(err)
		}
		return nil, nil, err
	}

	d.loggerFor(ctx).WithFields(map[string]interface{}{
		"version": version,
		"path":    r.URL.Path,
	}).Debug("No versioned route matched, using fallback collection")
	if d.metrics != nil {
		d.metrics.RouteFallbackTotal.Inc()
	}
	return route, params, nil
}

// translate turns err into a response. Registered exception handlers get
// the first chance; errors with an HTTP status get the generic body; any
// other error is returned untouched.
func (d *Dispatcher) translate(ctx context.Context, r *http.Request, err error, c *call) (*response.Response, error) {
	c.state = StateTranslating
	logger := d.loggerFor(ctx).WithError(err)

	if value, ok := d.exceptions.Handle(ctx, err); ok {
		logger.Debug("Error claimed by exception handler")
		return d.prepareError(ctx, r, response.Wrap(value, statusOr(err, http.StatusInternalServerError)), c)
	}

	resp, ok := errorResponse(err)
	if !ok {
		return nil, err
	}
	if resp.Status >= http.StatusInternalServerError {
		logger.WithField("status", resp.Status).Error("Request failed")
	} else {
		logger.WithField("status", resp.Status).Info("Request rejected")
	}
	return d.prepareError(ctx, r, resp, c)
}

// prepareError runs an error response through the pipeline. When the
// negotiated format cannot render it, the fallback format is used.
func (d *Dispatcher) prepareError(ctx context.Context, r *http.Request, resp *response.Response, c *call) (*response.Response, error) {
	c.state = StateDone
	copyHeaders(resp.Header, c.headers)

	out, err := d.pipeline.Prepare(ctx, r, resp, c.desc.Format)
	if err == nil {
		return out, nil
	}
	if !apierrors.IsKind(err, apierrors.KindUnsupportedFormat) || c.desc.Format == FallbackFormat {
		return nil, err
	}
	return d.pipeline.Prepare(ctx, r, resp, FallbackFormat)
}

func (d *Dispatcher) prepare(ctx context.Context, r *http.Request, value interface{}, c *call) (*response.Response, error) {
	resp := response.Wrap(value, http.StatusOK)
	copyHeaders(resp.Header, c.headers)
	return d.pipeline.Prepare(ctx, r, resp, c.desc.Format)
}

func statusOr(err error, fallback int) int {
	if status, ok := apierrors.StatusOf(err); ok {
		return status
	}
	return fallback
}

func (d *Dispatcher) loggerFor(ctx context.Context) *observability.Logger {
	if _, ok := contextkeys.GetLogger(ctx).(*observability.Logger); !ok {
		ctx = observability.WithLogger(ctx, d.logger)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, observability.FromContext(ctx))
}

// ServeHTTP adapts the dispatcher to net/http. Errors the dispatcher does not
// translate are logged and answered with a generic 500.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := d.Dispatch(r)
	if err != nil {
		d.loggerFor(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Unhandled error while dispatching request")
		httputil.WriteInternalError(w)
		return
	}

	if err := resp.Write(w, r); err != nil {
		d.loggerFor(r.Context()).WithError(err).Debugf("Failed to write %d response", resp.Status)
	}
}
