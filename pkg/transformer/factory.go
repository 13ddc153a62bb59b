package transformer

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/platinummonkey/apigate/pkg/content"
)

// ErrNotTransformable is returned when neither the binding nor the factory
// provides a transformer for a value
var ErrNotTransformable = errors.New("value is not transformable")

// Transformer projects one domain object into plain structured data,
// usually content.Fields
type Transformer interface {
	Transform(ctx context.Context, v interface{}) (interface{}, error)
}

// Func adapts a function to the Transformer interface
type Func func(ctx context.Context, v interface{}) (interface{}, error)

// Transform implements Transformer
func (f Func) Transform(ctx context.Context, v interface{}) (interface{}, error) {
	return f(ctx, v)
}

// Factory maps Go types to transformers. It is populated at bootstrap and
// read-only while serving. A nil *Factory transforms only explicitly bound
// values.
type Factory struct {
	byType map[reflect.Type]Transformer
}

// NewFactory creates an empty factory
func NewFactory() *Factory {
	return &Factory{byType: make(map[reflect.Type]Transformer)}
}

// Register maps the type of sample to t. Pointer and value types are
// registered separately.
func (f *Factory) Register(sample interface{}, t Transformer) {
	f.byType[reflect.TypeOf(sample)] = t
}

// Lookup returns the transformer registered for the type of v
func (f *Factory) Lookup(v interface{}) (Transformer, bool) {
	if f == nil || v == nil {
		return nil, false
	}
	t, ok := f.byType[reflect.TypeOf(v)]
	return t, ok
}

// Transformable reports whether v can be transformed, either through the
// binding's transformer or a registered type mapping. Slices are
// transformable when their element type is.
func (f *Factory) Transformable(v interface{}, b *Binding) bool {
	if b != nil && b.Transformer != nil {
		return true
	}
	_, ok := f.resolve(v)
	return ok
}

func (f *Factory) resolve(v interface{}) (Transformer, bool) {
	if t, ok := f.Lookup(v); ok {
		return t, true
	}
	if f == nil || v == nil {
		return nil, false
	}
	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Slice || rt.Kind() == reflect.Array {
		t, ok := f.byType[rt.Elem()]
		return t, ok
	}
	return nil, false
}

// Transform projects v and attaches the binding's metadata under MetaKey.
// Lists are transformed item by item and, when metadata is present, wrapped
// as {"data": [...], "meta": {...}}. The result is tagged for formatting.
func (f *Factory) Transform(ctx context.Context, v interface{}, b *Binding) (content.Content, error) {
	var t Transformer
	if b != nil && b.Transformer != nil {
		t = b.Transformer
	} else if resolved, ok := f.resolve(v); ok {
		t = resolved
	} else {
		return nil, fmt.Errorf("%w: %T", ErrNotTransformable, v)
	}

	rv := reflect.ValueOf(v)
	if v != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		if _, isBytes := v.([]byte); !isBytes {
			items, err := transformList(ctx, t, rv)
			if err != nil {
				return nil, err
			}
			return attachListMeta(items, b), nil
		}
	}

	out, err := t.Transform(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("transform %T: %w", v, err)
	}
	return attachMeta(out, b), nil
}

func transformList(ctx context.Context, t Transformer, rv reflect.Value) ([]interface{}, error) {
	items := make([]interface{}, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out, err := t.Transform(ctx, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("transform item %d: %w", i, err)
		}
		items = append(items, out)
	}
	return items, nil
}

func attachMeta(out interface{}, b *Binding) content.Content {
	if !b.HasMeta() {
		return content.Classify(out)
	}

	switch v := out.(type) {
	case content.Fields:
		return content.Record{Fields: v.Set(MetaKey, b.metaFields())}
	case map[string]interface{}:
		merged := make(map[string]interface{}, len(v)+1)
		for k, val := range v {
			merged[k] = val
		}
		merged[MetaKey] = b.metaFields()
		return content.Array{Value: merged}
	default:
		return content.Record{Fields: content.Fields{
			{Key: DataKey, Value: out},
			{Key: MetaKey, Value: b.metaFields()},
		}}
	}
}

func attachListMeta(items []interface{}, b *Binding) content.Content {
	if b.HasMeta() {
		return content.Record{Fields: content.Fields{
			{Key: DataKey, Value: items},
			{Key: MetaKey, Value: b.metaFields()},
		}}
	}

	records := make([]content.Fields, 0, len(items))
	for _, item := range items {
		fields, ok := item.(content.Fields)
		if !ok {
			return content.Array{Value: items}
		}
		records = append(records, fields)
	}
	return content.Collection{Items: records}
}
