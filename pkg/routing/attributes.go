package routing

import (
	"strings"
	"time"
)

// Attributes is an immutable group context. Entering a nested group derives
// a new value with Merge; leaving it simply drops that value, so sibling
// groups never observe each other's attributes.
type Attributes struct {
	// Prefix is joined with "/" across nesting levels.
	Prefix string
	// Namespace is joined with `\` across nesting levels. A leading `\`
	// makes it absolute and discards the outer namespace.
	Namespace string
	// Domain restricts matching to a host template. Last wins.
	Domain string
	// Versions lists the API versions routes register into. Last wins.
	Versions []string
	// Where maps path parameter names to regex constraints. Unioned, inner wins.
	Where map[string]string
	// Protected requires authentication. Last wins when set.
	Protected *bool
	// Scopes required from the principal. Concatenated.
	Scopes []string
	// Providers names the auth providers to try, in order. Concatenated.
	Providers []string
	// Throttle names a registered throttle. Last wins.
	Throttle string
	// Limit and Expires declare a route-specific throttle. Last wins.
	Limit   int
	Expires time.Duration
	// Conditional overrides conditional-request handling. Last wins when set.
	Conditional *bool
	// As is the route name, concatenated across levels ("users." + "show").
	As string
}

// Bool returns a pointer to b, for the tri-state attribute fields
func Bool(b bool) *bool {
	return &b
}

// Merge returns the attributes of inner nested inside a. Neither input is
// modified.
func (a Attributes) Merge(inner Attributes) Attributes {
	out := Attributes{
		Prefix:      mergePrefix(a.Prefix, inner.Prefix),
		Namespace:   mergeNamespace(a.Namespace, inner.Namespace),
		Domain:      lastString(a.Domain, inner.Domain),
		Versions:    a.Versions,
		Where:       mergeWhere(a.Where, inner.Where),
		Protected:   a.Protected,
		Scopes:      concatUnique(a.Scopes, inner.Scopes),
		Providers:   concatUnique(a.Providers, inner.Providers),
		Throttle:    lastString(a.Throttle, inner.Throttle),
		Limit:       a.Limit,
		Expires:     a.Expires,
		Conditional: a.Conditional,
		As:          a.As + inner.As,
	}

	if len(inner.Versions) > 0 {
		out.Versions = inner.Versions
	}
	out.Versions = append([]string(nil), out.Versions...)

	if inner.Protected != nil {
		out.Protected = inner.Protected
	}
	if inner.Conditional != nil {
		out.Conditional = inner.Conditional
	}
	if inner.Limit > 0 {
		out.Limit = inner.Limit
		out.Expires = inner.Expires
	}

	return out
}

// IsProtected reports whether authentication is required
func (a Attributes) IsProtected() bool {
	return a.Protected != nil && *a.Protected
}

// ResolvedNamespace returns the namespace without its absolute marker
func (a Attributes) ResolvedNamespace() string {
	return strings.Trim(a.Namespace, `\`)
}

func mergePrefix(outer, inner string) string {
	if inner == "" {
		return strings.Trim(outer, "/")
	}
	return strings.Trim(strings.Trim(outer, "/")+"/"+strings.Trim(inner, "/"), "/")
}

func mergeNamespace(outer, inner string) string {
	switch {
	case inner == "":
		return outer
	case strings.HasPrefix(inner, `\`):
		return `\` + strings.Trim(inner, `\`)
	case outer == "":
		return strings.Trim(inner, `\`)
	default:
		return strings.TrimRight(outer, `\`) + `\` + strings.Trim(inner, `\`)
	}
}

func mergeWhere(outer, inner map[string]string) map[string]string {
	if len(outer) == 0 && len(inner) == 0 {
		return nil
	}
	out := make(map[string]string, len(outer)+len(inner))
	for k, v := range outer {
		out[k] = v
	}
	for k, v := range inner {
		out[k] = v
	}
	return out
}

func concatUnique(outer, inner []string) []string {
	if len(outer) == 0 && len(inner) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(outer)+len(inner))
	out := make([]string, 0, len(outer)+len(inner))
	for _, list := range [][]string{outer, inner} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func lastString(outer, inner string) string {
	if inner != "" {
		return inner
	}
	return outer
}

// resolveUses prefixes a handler path with the group namespace unless the
// path is already qualified
func resolveUses(namespace, uses string) string {
	namespace = strings.Trim(namespace, `\`)
	if uses == "" || namespace == "" || strings.Contains(uses, `\`) {
		return strings.TrimLeft(uses, `\`)
	}
	return namespace + `\` + uses
}

// joinURI builds the registered URI from a group prefix and a route URI
func joinURI(prefix, uri string) string {
	return "/" + strings.Trim(strings.Trim(prefix, "/")+"/"+strings.Trim(uri, "/"), "/")
}
