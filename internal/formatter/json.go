package formatter

import (
	"encoding/json"

	"github.com/harunnryd/odoo-agent/internal/odoo"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) FormatModels(models []odoo.ModelInfo) (string, error) {
	if models == nil {
		models = []odoo.ModelInfo{}
	}
	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *JSONFormatter) FormatFields(model string, raw map[string]interface{}) (string, error) {
	data, err := json.MarshalIndent(Fields(raw), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
