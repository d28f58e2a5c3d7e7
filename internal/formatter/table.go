package formatter

import (
	"strconv"

	"github.com/harunnryd/odoo-agent/internal/odoo"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (f *TableFormatter) FormatModels(models []odoo.ModelInfo) (string, error) {
	if len(models) == 0 {
		return "No models found", nil
	}

	t := f.newTable("Model", "Name", "Transient")
	for _, m := range models {
		t.Row(m.Model, truncateString(m.Name, 40), strconv.FormatBool(m.Transient))
	}
	return t.String(), nil
}

func (f *TableFormatter) FormatFields(model string, raw map[string]interface{}) (string, error) {
	fields := Fields(raw)
	if len(fields) == 0 {
		return "No fields found for " + model, nil
	}

	t := f.newTable("Field", "Label", "Type", "Required", "Relation")
	for _, fl := range fields {
		t.Row(fl.Name, truncateString(fl.Label, 30), fl.Type, strconv.FormatBool(fl.Required), fl.Relation)
	}
	return t.String(), nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
