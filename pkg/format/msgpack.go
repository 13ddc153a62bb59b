package format

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/platinummonkey/apigate/pkg/content"
)

// Msgpack renders application/x-msgpack. Struct fields use their json tags
// and map keys are sorted.
type Msgpack struct{}

func (Msgpack) ContentType() string { return "application/x-msgpack" }

func (Msgpack) FormatRecord(r content.Record) ([]byte, error) {
	return encodeMsgpack(r.Payload())
}

func (Msgpack) FormatCollection(c content.Collection) ([]byte, error) {
	return encodeMsgpack(c.Payload())
}

func (Msgpack) FormatArray(a content.Array) ([]byte, error) {
	return encodeMsgpack(a.Value)
}

func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
