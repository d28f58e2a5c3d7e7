package formatter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harunnryd/odoo-agent/internal/odoo"
)

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

type yamlModel struct {
	Model     string `yaml:"model"`
	Name      string `yaml:"name"`
	Transient bool   `yaml:"transient"`
}

func (f *YAMLFormatter) FormatModels(models []odoo.ModelInfo) (string, error) {
	out := make([]yamlModel, len(models))
	for i, m := range models {
		out[i] = yamlModel{Model: m.Model, Name: m.Name, Transient: m.Transient}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *YAMLFormatter) FormatFields(model string, raw map[string]interface{}) (string, error) {
	data, err := yaml.Marshal(map[string]interface{}{
		"model":  model,
		"fields": Fields(raw),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
