package format

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/platinummonkey/apigate/pkg/content"
)

// ErrUnsupportedFormat is returned when no formatter is registered for a
// negotiated format
var ErrUnsupportedFormat = errors.New("unsupported format")

// Formatter serializes structured content. Implementations must emit keys in
// a stable order.
type Formatter interface {
	ContentType() string
	FormatRecord(content.Record) ([]byte, error)
	FormatCollection(content.Collection) ([]byte, error)
	FormatArray(content.Array) ([]byte, error)
}

// Factory builds the formatter for one request. Formatters such as jsonp
// read request parameters.
type Factory func(r *http.Request) Formatter

// Registry maps format names to formatter factories. It is built once at
// bootstrap and read-only while serving.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Defaults returns a registry with the json, jsonp, yaml and msgpack
// formatters. jsonp reads its callback from callbackParam.
func Defaults(callbackParam string) *Registry {
	reg := NewRegistry()
	reg.Register("json", func(*http.Request) Formatter { return JSON{} })
	reg.Register("jsonp", JSONPFactory(callbackParam))
	reg.Register("yaml", func(*http.Request) Formatter { return YAML{} })
	reg.Register("msgpack", func(*http.Request) Formatter { return Msgpack{} })
	return reg
}

// Register adds or replaces the factory for name
func (reg *Registry) Register(name string, f Factory) {
	reg.factories[name] = f
}

// Has reports whether name is registered
func (reg *Registry) Has(name string) bool {
	_, ok := reg.factories[name]
	return ok
}

// Names returns the registered format names, sorted
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.factories))
	for name := range reg.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Only returns a registry restricted to names. Unknown names are ignored.
func (reg *Registry) Only(names ...string) *Registry {
	out := NewRegistry()
	for _, name := range names {
		if f, ok := reg.factories[name]; ok {
			out.factories[name] = f
		}
	}
	return out
}

// Get builds the formatter for name
func (reg *Registry) Get(name string, r *http.Request) (Formatter, error) {
	f, ok := reg.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return f(r), nil
}

// Format dispatches c to the formatter method for its kind. Opaque content
// is not formatted: formatted is false and the caller keeps its existing
// content type.
func Format(f Formatter, c content.Content) (body []byte, formatted bool, err error) {
	switch v := c.(type) {
	case content.Record:
		body, err = f.FormatRecord(v)
	case content.Collection:
		body, err = f.FormatCollection(v)
	case content.Array:
		body, err = f.FormatArray(v)
	case content.Opaque:
		body, err = v.Render()
		return body, false, err
	default:
		return nil, false, fmt.Errorf("unknown content kind %T", c)
	}
	return body, err == nil, err
}
