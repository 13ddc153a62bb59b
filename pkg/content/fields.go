package content

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Field is one key/value pair of a structured record
type Field struct {
	Key   string
	Value interface{}
}

// Fields is an ordered object. Every encoder emits keys in insertion order,
// so repeated renders of the same fields are byte-identical.
type Fields []Field

// F builds Fields from alternating key/value arguments
func F(kv ...interface{}) Fields {
	fields := make(Fields, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fields = append(fields, Field{Key: key, Value: kv[i+1]})
	}
	return fields
}

// Get returns the value stored under key
func (f Fields) Get(key string) (interface{}, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key, appending it when absent
func (f Fields) Set(key string, value interface{}) Fields {
	for i := range f {
		if f[i].Key == key {
			out := append(Fields(nil), f...)
			out[i].Value = value
			return out
		}
	}
	return append(append(Fields(nil), f...), Field{Key: key, Value: value})
}

// Map converts to an unordered map
func (f Fields) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(f))
	for _, field := range f {
		m[field.Key] = field.Value
	}
	return m
}

// MarshalJSON implements json.Marshaler
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML implements yaml.Marshaler
func (f Fields) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, field := range f {
		var value yaml.Node
		if err := value.Encode(field.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: field.Key},
			&value,
		)
	}
	return node, nil
}

var _ msgpack.CustomEncoder = Fields(nil)

// EncodeMsgpack implements msgpack.CustomEncoder
func (f Fields) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(f)); err != nil {
		return err
	}
	for _, field := range f {
		if err := enc.EncodeString(field.Key); err != nil {
			return err
		}
		if err := enc.Encode(field.Value); err != nil {
			return err
		}
	}
	return nil
}
