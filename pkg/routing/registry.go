package routing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"
)

// ErrVersionRequired is returned when API routes are declared outside of a
// version
var ErrVersionRequired = errors.New("a version is required for an API group definition")

// Registry holds one collection per declared API version plus a fallback
// collection of non-versioned routes. It is built during bootstrap and
// read-only afterwards.
type Registry struct {
	collections map[string]*Collection
	versions    []string
	fallback    *Collection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]*Collection),
		fallback:    NewCollection(""),
	}
}

// AddRoute registers one route per version, creating version collections on
// first use. Every version is checked before any is changed, so a conflict
// in one version leaves the registry untouched.
func (r *Registry) AddRoute(methods []string, versions []string, uri string, action Action) ([]*Route, error) {
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVersionRequired, uri)
	}

	uri = joinURI("", uri)
	action.Versions = concatUnique(versions, nil)

	pending := make([]*pendingRoute, 0, len(action.Versions))
	for _, version := range action.Versions {
		c, ok := r.collections[version]
		if !ok {
			c = NewCollection(version)
		}
		p, err := c.prepare(methods, uri, action)
		if err != nil {
			return nil, fmt.Errorf("version %s: %w", version, err)
		}
		pending = append(pending, p)
	}

	routes := make([]*Route, 0, len(pending))
	for _, p := range pending {
		c := p.collection
		if _, ok := r.collections[c.version]; !ok {
			r.collections[c.version] = c
			r.versions = append(r.versions, c.version)
		}
		c.commit(p)
		routes = append(routes, p.route)
	}
	return routes, nil
}

// Match finds the route of version matching req
func (r *Registry) Match(req *http.Request, version string) (*Route, Params, error) {
	c, ok := r.collections[version]
	if !ok {
		return nil, nil, ErrRouteNotFound
	}
	return c.Match(req)
}

// MatchFallback finds a route of the non-versioned collection matching req
func (r *Registry) MatchFallback(req *http.Request) (*Route, Params, error) {
	return r.fallback.Match(req)
}

// Fallback returns the non-versioned collection
func (r *Registry) Fallback() *Collection {
	return r.fallback
}

// Collection returns the collection of version
func (r *Registry) Collection(version string) (*Collection, bool) {
	c, ok := r.collections[version]
	return c, ok
}

// HasVersion reports whether any route was registered for version
func (r *Registry) HasVersion(version string) bool {
	_, ok := r.collections[version]
	return ok
}

// Versions returns the declared versions in declaration order
func (r *Registry) Versions() []string {
	return append([]string(nil), r.versions...)
}

// Routes returns the routes of version
func (r *Registry) Routes(version string) []*Route {
	if c, ok := r.collections[version]; ok {
		return c.Routes()
	}
	return nil
}

// Version declares routes for one API version:
//
//	err := reg.Version("v1", routing.Attributes{Prefix: "api"}, func(g *routing.Group) {
//		g.Get("users/{id}", showUser)
//	})
//
// Registration errors of every route in fn are collected and returned.
func (r *Registry) Version(version string, attrs Attributes, fn func(*Group)) error {
	attrs.Versions = []string{version}
	return r.Group(attrs, fn)
}

// Group declares routes sharing attrs. attrs must name at least one version.
func (r *Registry) Group(attrs Attributes, fn func(*Group)) error {
	if len(attrs.Versions) == 0 {
		return ErrVersionRequired
	}
	b := &builder{registry: r}
	fn(&Group{b: b, attrs: Attributes{}.Merge(attrs)})
	return b.errs.ErrorOrNil()
}

// Default declares non-versioned routes in the fallback collection
func (r *Registry) Default(attrs Attributes, fn func(*Group)) error {
	b := &builder{registry: r, fallback: true}
	fn(&Group{b: b, attrs: Attributes{}.Merge(attrs)})
	return b.errs.ErrorOrNil()
}

type builder struct {
	registry *Registry
	fallback bool
	errs     *multierror.Error
}

// Group is a route-definition scope. It carries its attributes by value;
// nested groups derive their own.
type Group struct {
	b     *builder
	attrs Attributes
}

// Attributes returns the effective attributes of the group
func (g *Group) Attributes() Attributes {
	return g.attrs.Merge(Attributes{})
}

// Group declares a nested group
func (g *Group) Group(attrs Attributes, fn func(*Group)) {
	fn(&Group{b: g.b, attrs: g.attrs.Merge(attrs)})
}

// Handle registers action for methods at uri, with the group attributes
// merged underneath the action's own
func (g *Group) Handle(methods []string, uri string, action Action) []*Route {
	merged := g.attrs.Merge(action.Attributes)
	action.Attributes = merged
	action.Uses = resolveUses(merged.Namespace, action.Uses)
	uri = joinURI(merged.Prefix, uri)

	if g.b.fallback {
		route, err := g.b.registry.fallback.Add(methods, uri, action)
		if err != nil {
			g.b.errs = multierror.Append(g.b.errs, err)
			return nil
		}
		return []*Route{route}
	}

	routes, err := g.b.registry.AddRoute(methods, merged.Versions, uri, action)
	if err != nil {
		g.b.errs = multierror.Append(g.b.errs, err)
	}
	return routes
}

func (g *Group) handle(methods []string, uri string, h Handler, attrs []Attributes) []*Route {
	action := Action{Handler: h}
	for _, a := range attrs {
		action.Attributes = action.Attributes.Merge(a)
	}
	return g.Handle(methods, uri, action)
}

// Get registers a GET route, which also answers HEAD
func (g *Group) Get(uri string, h Handler, attrs ...Attributes) []*Route {
	return g.handle([]string{http.MethodGet, http.MethodHead}, uri, h, attrs)
}

// Post registers a POST route
func (g *Group) Post(uri string, h Handler, attrs ...Attributes) []*Route {
	return g.handle([]string{http.MethodPost}, uri, h, attrs)
}

// Put registers a PUT route
func (g *Group) Put(uri string, h Handler, attrs ...Attributes) []*Route {
	return g.handle([]string{http.MethodPut}, uri, h, attrs)
}

// Patch registers a PATCH route
func (g *Group) Patch(uri string, h Handler, attrs ...Attributes) []*Route {
	return g.handle([]string{http.MethodPatch}, uri, h, attrs)
}

// Delete registers a DELETE route
func (g *Group) Delete(uri string, h Handler, attrs ...Attributes) []*Route {
	return g.handle([]string{http.MethodDelete}, uri, h, attrs)
}

// Options registers an OPTIONS route
func (g *Group) Options(uri string, h Handler, attrs ...Attributes) []*Route {
	return g.handle([]string{http.MethodOptions}, uri, h, attrs)
}
