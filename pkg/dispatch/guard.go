package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/auth"
	"github.com/platinummonkey/apigate/pkg/contextkeys"
	"github.com/platinummonkey/apigate/pkg/httputil"
	"github.com/platinummonkey/apigate/pkg/routing"
	"github.com/platinummonkey/apigate/pkg/throttle"
)

// DefaultRouteWindow is the window of route-declared limits without Expires
const DefaultRouteWindow = time.Minute

// authenticate runs the authenticator for protected routes. Internal
// requests reuse the principal of the outer request when there is one.
func (d *Dispatcher) authenticate(ctx context.Context, r *http.Request, route *routing.Route) (context.Context, error) {
	if !route.IsProtected() {
		return ctx, nil
	}
	if contextkeys.IsInternal(ctx) && auth.FromContext(ctx) != nil {
		return ctx, nil
	}
	if d.authenticator == nil {
		return ctx, apierrors.Unauthorized("Authentication is required but no provider is configured.")
	}

	principal, err := d.authenticator.Authenticate(ctx, r, route)
	if err != nil {
		return ctx, err
	}
	return auth.WithPrincipal(ctx, principal), nil
}

// resolveThrottle picks the throttle of a request: the throttle named by the
// route, then a limit declared on the route, then the first matching
// throttle of the chain
func (d *Dispatcher) resolveThrottle(r *http.Request, route *routing.Route, id throttle.Identity) (*throttle.Throttle, error) {
	if name := route.ThrottleID(); name != "" {
		t, ok := d.throttles.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("route %s uses unknown throttle %q", route.ID(), name)
		}
		return t, nil
	}

	action := route.Action()
	if action.Limit > 0 {
		window := action.Expires
		if window <= 0 {
			window = DefaultRouteWindow
		}
		return &throttle.Throttle{
			ID:     "route:" + route.ID(),
			Limit:  action.Limit,
			Window: window,
			Match:  throttle.Always(),
		}, nil
	}

	return d.throttles.Resolve(r, id), nil
}

// throttle counts the request. It returns the rate-limit headers for the
// response, or a 429 when the limit is exceeded or the store cannot answer.
func (d *Dispatcher) throttle(ctx context.Context, r *http.Request, route *routing.Route) (http.Header, error) {
	if d.limiter == nil || contextkeys.IsInternal(ctx) {
		return nil, nil
	}

	id := throttle.Identity{Address: httputil.ClientIP(r)}
	if p := auth.FromContext(ctx); p != nil {
		id.Principal = p.ID
	}

	t, err := d.resolveThrottle(r, route, id)
	if err != nil || t == nil {
		return nil, err
	}

	res, err := d.limiter.Check(ctx, t, id)
	logger := d.loggerFor(ctx).WithFields(map[string]interface{}{
		"throttle": t.ID,
		"consumer": id.Key(),
	})
	if err != nil {
		logger.WithError(err).Warn("Throttle store unavailable, rejecting request")
		return nil, res.Exceeded().Wrap(err)
	}
	if !res.Allowed {
		logger.Warn("Rate limit exceeded")
		return nil, res.Exceeded()
	}
	return res.Headers(), nil
}
