package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"

	"github.com/lacquerai/cortex/internal/style"
)

// writeText renders doc for a terminal.
func writeText(w io.Writer, doc document) error {
	var b strings.Builder

	b.WriteString(style.TitleStyle.Render(doc.title))
	b.WriteString("\n")
	b.WriteString(style.MutedStyle.Render(doc.subtitle))
	b.WriteString("\n\n")

	scoreLine := style.ScoreStyle(doc.score).Render(fmt.Sprintf("%d / 100", doc.score))
	if doc.band != "" {
		scoreLine += "  " + style.SeverityStyle(doc.band).Render(doc.band)
	}
	b.WriteString(style.ScoreBoxStyle.Render(scoreLine))
	b.WriteString("\n")

	for i, s := range doc.sections {
		b.WriteString(style.SectionStyle.Render(fmt.Sprintf("%d. %s", i+1, s.title)))
		b.WriteString("\n")
		for _, blk := range s.blocks {
			textBlock(&b, blk)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func textBlock(b *strings.Builder, blk block) {
	switch v := blk.(type) {
	case heading:
		b.WriteString("\n")
		b.WriteString(style.TitleStyle.Render(string(v)))
		b.WriteString("\n")
	case prose:
		b.WriteString(lipgloss.NewStyle().Width(80).Render(string(v)))
		b.WriteString("\n")
	case note:
		b.WriteString(textNote(v))
		b.WriteString("\n")
	case fields:
		for _, f := range v {
			b.WriteString(style.LabelStyle.Render(f.label))
			b.WriteString(f.value)
			b.WriteString("\n")
		}
	case table:
		textTable(b, v)
	}
}

func textNote(n note) string {
	switch n.tone {
	case toneSuccess:
		return style.SuccessIcon() + " " + n.text
	case toneWarning:
		return style.WarningIcon() + " " + style.WarningStyle.Render(n.text)
	case toneError:
		return style.ErrorIcon() + " " + style.ErrorStyle.Render(n.text)
	case toneMuted:
		return style.SkipIcon() + " " + style.MutedStyle.Render(n.text)
	default:
		return style.InfoIcon() + " " + n.text
	}
}

// textTable lays out t in padded columns with a dashed rule under the
// header.
func textTable(b *strings.Builder, t table) {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", w-lipgloss.Width(s)+2)
	}

	b.WriteString("  ")
	for i, h := range t.headers {
		b.WriteString(pad(style.MutedStyle.Render(h), widths[i]))
	}
	b.WriteString("\n  ")
	for _, w := range widths {
		b.WriteString(style.MutedStyle.Render(strings.Repeat("-", w)))
		b.WriteString("  ")
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		b.WriteString("  ")
		for i, cell := range row {
			if i < len(widths) {
				b.WriteString(pad(cell, widths[i]))
			}
		}
		b.WriteString("\n")
	}
}
