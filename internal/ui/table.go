package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows under headers with the CLI's border and colours. Cells
// in the first column are highlighted, and highlight reports rows whose
// remaining cells should be drawn in the active colour.
func Table(headers []string, rows [][]string, highlight func(row int) bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return lipgloss.NewStyle().
					Foreground(ColorPrimary).
					Bold(true).
					Padding(0, 1)
			case col == 0:
				return lipgloss.NewStyle().
					Foreground(ColorInfo).
					Bold(true).
					Padding(0, 1)
			case highlight != nil && highlight(row):
				return lipgloss.NewStyle().
					Foreground(ColorActive).
					Padding(0, 1)
			default:
				return lipgloss.NewStyle().
					Foreground(ColorText).
					Padding(0, 1)
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}
