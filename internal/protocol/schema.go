package protocol

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const commandSchemaJSON = `{
  "type": "object",
  "required": ["model", "method"],
  "properties": {
    "model": {"type": "string", "minLength": 1},
    "method": {"type": "string", "minLength": 1},
    "args": {"type": "array"},
    "kwargs": {"type": "object"},
    "custom_method": {"type": "string"}
  }
}`

const delegationSchemaJSON = `{
  "type": "object",
  "required": ["instruction"],
  "properties": {
    "instruction": {"type": "string", "minLength": 1},
    "customer_id": {"type": "integer"}
  }
}`

var (
	commandSchema    = mustSchema(commandSchemaJSON)
	delegationSchema = mustSchema(delegationSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

// checkShape validates a JSON document and returns the violations joined
// into one message, or "" when the document conforms.
func checkShape(schema *gojsonschema.Schema, doc []byte) (string, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return "", err
	}
	if result.Valid() {
		return "", nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return strings.Join(problems, "; "), nil
}
