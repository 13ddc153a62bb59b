package content

import (
	"encoding"
	"fmt"
	"io"
	"reflect"
)

// Kind tags the shape of response content once, before formatting
type Kind int

const (
	// KindOpaque is content rendered as-is: strings, bytes, numbers, readers.
	KindOpaque Kind = iota
	// KindRecord is a single keyed resource.
	KindRecord
	// KindCollection is a homogeneous list of resources.
	KindCollection
	// KindArray is generic structured data: maps, slices, structs.
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindCollection:
		return "collection"
	case KindArray:
		return "array"
	default:
		return "opaque"
	}
}

// Content is the tagged variant handed to formatters
type Content interface {
	Kind() Kind
}

// Model is implemented by domain objects rendered as keyed resources.
// ResourceKey returns the singular and plural wrapping keys, e.g.
// ("app_user", "app_users").
type Model interface {
	ResourceKey() (singular, plural string)
	ResourceFields() Fields
}

// Record is a single resource. A non-empty Key wraps the fields as {Key: fields}.
type Record struct {
	Key    string
	Fields Fields
}

func (Record) Kind() Kind { return KindRecord }

// Payload returns the value a formatter encodes
func (r Record) Payload() interface{} {
	if r.Key == "" {
		return r.Fields
	}
	return Fields{{Key: r.Key, Value: r.Fields}}
}

// Collection is a list of resources. A non-empty Key wraps the items as
// {Key: [...]}; an empty collection always renders as a bare empty list.
type Collection struct {
	Key   string
	Items []Fields
}

func (Collection) Kind() Kind { return KindCollection }

// Payload returns the value a formatter encodes
func (c Collection) Payload() interface{} {
	items := c.Items
	if items == nil {
		items = []Fields{}
	}
	if c.Key == "" || len(items) == 0 {
		return items
	}
	return Fields{{Key: c.Key, Value: items}}
}

// Array is generic structured data
type Array struct {
	Value interface{}
}

func (Array) Kind() Kind { return KindArray }

// Opaque is content that bypasses formatting
type Opaque struct {
	Value interface{}
}

func (Opaque) Kind() Kind { return KindOpaque }

// Bytes returns the raw body of opaque content and whether it is hashable
// as-is (strings and byte slices only)
func (o Opaque) Bytes() ([]byte, bool) {
	switch v := o.Value.(type) {
	case nil:
		return nil, true
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// Render converts opaque content to a body, the way it would be written
// unformatted
func (o Opaque) Render() ([]byte, error) {
	if b, ok := o.Bytes(); ok {
		return b, nil
	}
	switch v := o.Value.(type) {
	case io.Reader:
		return io.ReadAll(v)
	case encoding.TextMarshaler:
		return v.MarshalText()
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}

var modelType = reflect.TypeOf((*Model)(nil)).Elem()

// Classify tags v with its content kind
func Classify(v interface{}) Content {
	switch c := v.(type) {
	case *Record:
		return *c
	case *Collection:
		return *c
	case *Array:
		return *c
	case *Opaque:
		return *c
	case Content:
		return c
	case Model:
		singular, _ := c.ResourceKey()
		return Record{Key: singular, Fields: c.ResourceFields()}
	case Fields:
		return Record{Fields: c}
	case []Fields:
		return Collection{Items: c}
	case nil, string, []byte, bool, io.Reader, encoding.TextMarshaler:
		return Opaque{Value: v}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Implements(modelType) {
			return collectModels(rv)
		}
		return Array{Value: v}
	case reflect.Map, reflect.Struct:
		return Array{Value: v}
	case reflect.Ptr:
		if rv.IsNil() {
			return Opaque{Value: nil}
		}
		if k := rv.Elem().Kind(); k == reflect.Struct || k == reflect.Map || k == reflect.Slice {
			return Array{Value: v}
		}
	}

	return Opaque{Value: v}
}

func collectModels(rv reflect.Value) Collection {
	c := Collection{Items: make([]Fields, 0, rv.Len())}
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i)
		if elem.Kind() == reflect.Interface || elem.Kind() == reflect.Ptr {
			if elem.IsNil() {
				continue
			}
		}
		m := elem.Interface().(Model)
		if c.Key == "" {
			_, c.Key = m.ResourceKey()
		}
		c.Items = append(c.Items, m.ResourceFields())
	}
	return c
}
