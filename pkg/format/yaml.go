package format

import (
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/apigate/pkg/content"
)

// YAML renders application/x-yaml. Fields keep their order through
// yaml.Node encoding.
type YAML struct{}

func (YAML) ContentType() string { return "application/x-yaml" }

func (YAML) FormatRecord(r content.Record) ([]byte, error) {
	return yaml.Marshal(r.Payload())
}

func (YAML) FormatCollection(c content.Collection) ([]byte, error) {
	return yaml.Marshal(c.Payload())
}

func (YAML) FormatArray(a content.Array) ([]byte, error) {
	return yaml.Marshal(a.Value)
}
