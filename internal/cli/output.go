package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"

	"github.com/lacquerai/cortex/internal/style"
)

// printTable outputs rows in a padded, human-readable table
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = lipgloss.Width(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	cells := make([]string, len(headers))
	for i, header := range headers {
		cells[i] = style.MutedStyle.Render(pad(header, widths[i]))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))

	for _, row := range rows {
		for i := range cells {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = pad(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
