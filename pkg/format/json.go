package format

import (
	"bytes"
	"net/http"
	"regexp"

	jsoniter "github.com/json-iterator/go"

	"github.com/platinummonkey/apigate/pkg/content"
)

// map keys are sorted by the standard-library compatible config
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON renders application/json
type JSON struct{}

func (JSON) ContentType() string { return "application/json" }

func (JSON) FormatRecord(r content.Record) ([]byte, error) {
	return json.Marshal(r.Payload())
}

func (JSON) FormatCollection(c content.Collection) ([]byte, error) {
	return json.Marshal(c.Payload())
}

func (JSON) FormatArray(a content.Array) ([]byte, error) {
	return json.Marshal(a.Value)
}

// DefaultCallbackParam is the query parameter naming the JSONP callback
const DefaultCallbackParam = "callback"

var callbackName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// JSONP wraps JSON output as Callback(<json>);. Without a valid callback it
// renders plain JSON.
type JSONP struct {
	Callback string
}

// JSONPFactory reads the callback from the param query parameter of each
// request
func JSONPFactory(param string) Factory {
	if param == "" {
		param = DefaultCallbackParam
	}
	return func(r *http.Request) Formatter {
		if r == nil {
			return JSONP{}
		}
		return JSONP{Callback: r.URL.Query().Get(param)}
	}
}

func (f JSONP) hasCallback() bool {
	return f.Callback != "" && callbackName.MatchString(f.Callback)
}

func (f JSONP) ContentType() string {
	if f.hasCallback() {
		return "application/javascript"
	}
	return JSON{}.ContentType()
}

func (f JSONP) FormatRecord(r content.Record) ([]byte, error) {
	return f.wrap(JSON{}.FormatRecord(r))
}

func (f JSONP) FormatCollection(c content.Collection) ([]byte, error) {
	return f.wrap(JSON{}.FormatCollection(c))
}

func (f JSONP) FormatArray(a content.Array) ([]byte, error) {
	return f.wrap(JSON{}.FormatArray(a))
}

func (f JSONP) wrap(body []byte, err error) ([]byte, error) {
	if err != nil || !f.hasCallback() {
		return body, err
	}
	var buf bytes.Buffer
	buf.Grow(len(f.Callback) + len(body) + 3)
	buf.WriteString(f.Callback)
	buf.WriteByte('(')
	buf.Write(body)
	buf.WriteString(");")
	return buf.Bytes(), nil
}
