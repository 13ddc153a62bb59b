package routing

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Handler produces the raw result of an API call. The result is shaped by
// the response pipeline; a returned *apierrors.Error is translated into an
// error response.
type Handler func(*Request) (interface{}, error)

// Action describes what a route does: the handler plus the attributes it was
// registered with
type Action struct {
	Attributes
	Handler Handler
	// Uses is the handler path, resolved against the group namespace.
	Uses string
}

// Params are the bound path parameters of a matched route
type Params map[string]string

// Get returns the raw parameter value
func (p Params) Get(key string) string {
	return p[key]
}

// Int parses an integer path parameter
func (p Params) Int(key string) (int, error) {
	str, ok := p[key]
	if !ok || str == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %s", key, str)
	}
	return val, nil
}

// Request is the handler input
type Request struct {
	*http.Request
	Route   *Route
	Params  Params
	Version string
	Format  string
}

// Route is immutable once registered
type Route struct {
	methods   []string
	uri       string
	version   string
	action    Action
	templates []string
	signature string
}

// Methods returns the HTTP methods the route answers
func (r *Route) Methods() []string { return append([]string(nil), r.methods...) }

// URI returns the registered URI pattern
func (r *Route) URI() string { return r.uri }

// Version returns the version collection the route belongs to. It is empty
// for routes of the fallback collection.
func (r *Route) Version() string { return r.version }

// Action returns a copy of the route action
func (r *Route) Action() Action { return r.action }

// Name returns the route name
func (r *Route) Name() string { return r.action.As }

// Domain returns the host template the route is restricted to
func (r *Route) Domain() string { return r.action.Domain }

// Versions returns every version the action was declared for
func (r *Route) Versions() []string { return append([]string(nil), r.action.Versions...) }

// IsProtected reports whether the route requires authentication
func (r *Route) IsProtected() bool { return r.action.IsProtected() }

// Scopes returns the scopes a principal needs for the route
func (r *Route) Scopes() []string { return append([]string(nil), r.action.Scopes...) }

// Providers returns the auth providers declared on the route
func (r *Route) Providers() []string { return append([]string(nil), r.action.Providers...) }

// ThrottleID returns the named throttle declared on the route
func (r *Route) ThrottleID() string { return r.action.Throttle }

// ID identifies the route uniquely across all collections
func (r *Route) ID() string {
	id := strings.Join(r.methods, "|") + " " + r.action.Domain + r.uri
	if r.version != "" {
		id = r.version + " " + id
	}
	return id
}

// Handle invokes the route handler
func (r *Route) Handle(req *Request) (interface{}, error) {
	if r.action.Handler == nil {
		return nil, fmt.Errorf("route %s has no handler", r.ID())
	}
	return r.action.Handler(req)
}

var (
	// ErrInvalidPattern is returned for URIs that cannot be compiled
	ErrInvalidPattern = errors.New("invalid route pattern")

	segmentParam = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*)(\?)?\}$`)
	inlineParam  = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// compileTemplates turns a URI with {name} and {name?} segments into gorilla/mux
// path templates. Parameters with a where-constraint become {name:regex}.
// Optional segments must be trailing; each one adds a template without it.
func compileTemplates(uri string, where map[string]string) ([]string, error) {
	if uri == "/" {
		return []string{"/"}, nil
	}

	segments := strings.Split(strings.Trim(uri, "/"), "/")
	rendered := make([]string, 0, len(segments))
	firstOptional := -1

	for i, seg := range segments {
		if m := segmentParam.FindStringSubmatch(seg); m != nil {
			if m[2] == "?" && firstOptional < 0 {
				firstOptional = i
			} else if m[2] == "" && firstOptional >= 0 {
				return nil, fmt.Errorf("%w: required segment %q follows an optional one in %s", ErrInvalidPattern, seg, uri)
			}
			rendered = append(rendered, renderParam(m[1], where))
			continue
		}
		if strings.Contains(seg, "?}") {
			return nil, fmt.Errorf("%w: optional parameter must be a whole segment in %s", ErrInvalidPattern, uri)
		}
		if firstOptional >= 0 {
			return nil, fmt.Errorf("%w: static segment %q follows an optional one in %s", ErrInvalidPattern, seg, uri)
		}
		rendered = append(rendered, inlineParam.ReplaceAllStringFunc(seg, func(p string) string {
			return renderParam(p[1:len(p)-1], where)
		}))
	}

	if firstOptional < 0 {
		return []string{"/" + strings.Join(rendered, "/")}, nil
	}

	templates := make([]string, 0, len(rendered)-firstOptional+1)
	for n := len(rendered); n >= firstOptional; n-- {
		templates = append(templates, "/"+strings.Join(rendered[:n], "/"))
	}
	return templates, nil
}

func renderParam(name string, where map[string]string) string {
	if expr, ok := where[name]; ok && expr != "" {
		return "{" + name + ":" + expr + "}"
	}
	return "{" + name + "}"
}

// compileHost renders where-constraints into a host template
func compileHost(domain string, where map[string]string) string {
	if domain == "" {
		return ""
	}
	return inlineParam.ReplaceAllStringFunc(domain, func(p string) string {
		return renderParam(p[1:len(p)-1], where)
	})
}

var templateParam = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*(:[^}]*)?\}`)

// structuralSignature erases parameter names so that /users/{id} and
// /users/{user} compare equal
func structuralSignature(method, host, template string) string {
	erase := func(s string) string {
		return templateParam.ReplaceAllStringFunc(s, func(p string) string {
			if i := strings.IndexByte(p, ':'); i >= 0 {
				return "{" + p[i:]
			}
			return "{}"
		})
	}
	return method + " " + strings.ToLower(erase(host)) + erase(template)
}
