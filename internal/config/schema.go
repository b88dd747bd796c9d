package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Schema describes the configuration file format as a JSON Schema. Property
// names follow the file keys, which are identical for TOML and YAML.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		FieldNameTag:               "toml",
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Description: "Go duration such as 30s or 3m",
				}
			}
			return nil
		},
	}
	s := r.Reflect(&Config{})
	s.Title = "kconf server configuration"
	return s
}
