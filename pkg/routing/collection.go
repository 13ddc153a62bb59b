package routing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

var (
	// ErrRouteNotFound is returned when no route of a collection matches
	ErrRouteNotFound = errors.New("route not found")
	// ErrDuplicateRoute is returned when a structurally identical route is
	// already registered in the same collection
	ErrDuplicateRoute = errors.New("duplicate route")
)

// matched is attached to every mux route so that mux clears method
// mismatches recorded by earlier routes.
var matched = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// Collection holds the routes of one API version. Matching is delegated to
// a gorilla/mux router owned by the collection.
type Collection struct {
	version    string
	router     *mux.Router
	routes     []*Route
	byMux      map[*mux.Route]*Route
	signatures map[string]*Route
	names      map[string]*Route
}

// NewCollection creates an empty collection for version
func NewCollection(version string) *Collection {
	return &Collection{
		version:    version,
		router:     mux.NewRouter(),
		byMux:      make(map[*mux.Route]*Route),
		signatures: make(map[string]*Route),
		names:      make(map[string]*Route),
	}
}

// Version returns the version the collection serves
func (c *Collection) Version() string {
	return c.version
}

// Add registers a new route built from methods, uri and action. It fails
// with ErrDuplicateRoute when any method+pattern+domain is already taken.
func (c *Collection) Add(methods []string, uri string, action Action) (*Route, error) {
	p, err := c.prepare(methods, uri, action)
	if err != nil {
		return nil, err
	}
	c.commit(p)
	return p.route, nil
}

// pendingRoute is a route validated against a collection but not yet added
type pendingRoute struct {
	collection *Collection
	route      *Route
	host       string
	signatures []string
}

// prepare compiles and validates a route without changing the collection
func (c *Collection) prepare(methods []string, uri string, action Action) (*pendingRoute, error) {
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no methods for %s", ErrInvalidPattern, uri)
	}

	templates, err := compileTemplates(uri, action.Where)
	if err != nil {
		return nil, err
	}
	host := compileHost(action.Domain, action.Where)

	route := &Route{
		methods:   append([]string(nil), methods...),
		uri:       uri,
		version:   c.version,
		action:    action,
		templates: templates,
	}

	signatures := make([]string, 0, len(methods)*len(templates))
	for _, method := range methods {
		for _, tpl := range templates {
			sig := structuralSignature(method, host, tpl)
			if existing, ok := c.signatures[sig]; ok {
				return nil, fmt.Errorf("%w: %s %s conflicts with %s", ErrDuplicateRoute, method, uri, existing.ID())
			}
			signatures = append(signatures, sig)
		}
	}
	if route.action.As != "" {
		if existing, ok := c.names[route.action.As]; ok {
			return nil, fmt.Errorf("%w: name %q already used by %s", ErrDuplicateRoute, route.action.As, existing.ID())
		}
	}

	// validate on a scratch router first; mux routes cannot be removed
	scratch := mux.NewRouter()
	for _, tpl := range templates {
		if err := newMuxRoute(scratch, tpl, host, methods).GetError(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPattern, uri, err)
		}
	}

	return &pendingRoute{collection: c, route: route, host: host, signatures: signatures}, nil
}

func (c *Collection) commit(p *pendingRoute) {
	route := p.route
	for _, tpl := range route.templates {
		c.byMux[newMuxRoute(c.router, tpl, p.host, route.methods)] = route
	}
	for _, sig := range p.signatures {
		c.signatures[sig] = route
	}
	if route.action.As != "" {
		c.names[route.action.As] = route
	}
	route.signature = p.signatures[0]
	c.routes = append(c.routes, route)
}

// Match returns the route matching method, path and host of req together
// with its path parameters. It never modifies the collection.
func (c *Collection) Match(req *http.Request) (*Route, Params, error) {
	var rm mux.RouteMatch
	if !c.router.Match(req, &rm) || rm.MatchErr != nil {
		return nil, nil, ErrRouteNotFound
	}

	route, ok := c.byMux[rm.Route]
	if !ok {
		return nil, nil, ErrRouteNotFound
	}

	params := make(Params, len(rm.Vars))
	for k, v := range rm.Vars {
		params[k] = v
	}
	return route, params, nil
}

// Routes returns the routes in registration order
func (c *Collection) Routes() []*Route {
	return append([]*Route(nil), c.routes...)
}

// Named returns the route registered under name
func (c *Collection) Named(name string) (*Route, bool) {
	route, ok := c.names[name]
	return route, ok
}

func newMuxRoute(router *mux.Router, tpl, host string, methods []string) *mux.Route {
	mr := router.NewRoute().Path(tpl).Methods(methods...)
	if host != "" {
		mr = mr.Host(host)
	}
	return mr.Handler(matched)
}
