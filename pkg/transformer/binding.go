package transformer

import (
	"sort"

	"github.com/platinummonkey/apigate/pkg/content"
)

// MetaKey is the reserved top-level key metadata is attached under
const MetaKey = "meta"

// DataKey wraps list output when metadata is attached
const DataKey = "data"

// Binding pairs a response resource with the transformer that projects it
// and the metadata attached to the output. A binding belongs to exactly one
// response.
type Binding struct {
	Resource    interface{}
	Transformer Transformer
	meta        map[string]interface{}
}

// NewBinding binds resource to t. t may be nil, in which case the factory's
// type mapping decides.
func NewBinding(resource interface{}, t Transformer) *Binding {
	return &Binding{Resource: resource, Transformer: t}
}

// AddMeta sets one metadata entry
func (b *Binding) AddMeta(key string, value interface{}) *Binding {
	if b.meta == nil {
		b.meta = make(map[string]interface{})
	}
	b.meta[key] = value
	return b
}

// SetMeta replaces all metadata
func (b *Binding) SetMeta(meta map[string]interface{}) *Binding {
	b.meta = make(map[string]interface{}, len(meta))
	for k, v := range meta {
		b.meta[k] = v
	}
	return b
}

// Meta returns a copy of the metadata
func (b *Binding) Meta() map[string]interface{} {
	out := make(map[string]interface{}, len(b.meta))
	for k, v := range b.meta {
		out[k] = v
	}
	return out
}

// HasMeta reports whether any metadata was attached
func (b *Binding) HasMeta() bool {
	return b != nil && len(b.meta) > 0
}

// metaFields renders the metadata sorted by key so output is stable
func (b *Binding) metaFields() content.Fields {
	keys := make([]string, 0, len(b.meta))
	for k := range b.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make(content.Fields, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, content.Field{Key: k, Value: b.meta[k]})
	}
	return fields
}
