package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/odoo-agent/internal/odoo"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ModelFormatter renders remote store metadata for the CLI.
type ModelFormatter interface {
	FormatModels([]odoo.ModelInfo) (string, error)
	FormatFields(model string, fields map[string]interface{}) (string, error)
}

type FormatterFactory struct{}

func NewFormatterFactory() *FormatterFactory {
	return &FormatterFactory{}
}

func (f *FormatterFactory) Create(format OutputFormat) (ModelFormatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(s))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}

// Field is one fields_get entry flattened for display.
type Field struct {
	Name     string `json:"name" yaml:"name"`
	Label    string `json:"label" yaml:"label"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
	Readonly bool   `json:"readonly" yaml:"readonly"`
	Relation string `json:"relation,omitempty" yaml:"relation,omitempty"`
}

// Fields flattens a fields_get reply, sorted by field name.
func Fields(raw map[string]interface{}) []Field {
	out := make([]Field, 0, len(raw))
	for name, v := range raw {
		f := Field{Name: name}
		if attrs, ok := v.(map[string]interface{}); ok {
			f.Label, _ = attrs["string"].(string)
			f.Type, _ = attrs["type"].(string)
			f.Required, _ = attrs["required"].(bool)
			f.Readonly, _ = attrs["readonly"].(bool)
			f.Relation, _ = attrs["relation"].(string)
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
