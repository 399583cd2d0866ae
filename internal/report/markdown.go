package report

import (
	"fmt"
	"io"
	"strings"
)

var markdownIcons = map[tone]string{
	toneInfo:    "ℹ️",
	toneSuccess: "✅",
	toneWarning: "⚠️",
	toneError:   "🚨",
	toneMuted:   "➖",
}

// writeMarkdown renders doc as GitHub flavoured markdown.
func writeMarkdown(w io.Writer, doc document) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", doc.title)
	fmt.Fprintf(&b, "_%s_\n", doc.subtitle)

	for i, s := range doc.sections {
		fmt.Fprintf(&b, "\n## %d. %s\n", i+1, s.title)
		for _, blk := range s.blocks {
			b.WriteString("\n")
			markdownBlock(&b, blk)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func markdownBlock(b *strings.Builder, blk block) {
	switch v := blk.(type) {
	case heading:
		fmt.Fprintf(b, "### %s\n", v)
	case prose:
		fmt.Fprintf(b, "> %s\n", strings.ReplaceAll(string(v), "\n", "\n> "))
	case note:
		fmt.Fprintf(b, "%s %s\n", markdownIcons[v.tone], escapeMarkdown(v.text))
	case fields:
		for _, f := range v {
			fmt.Fprintf(b, "- **%s:** %s\n", f.label, escapeMarkdown(f.value))
		}
	case table:
		markdownTable(b, v)
	}
}

func markdownTable(b *strings.Builder, t table) {
	if len(t.rows) == 0 {
		b.WriteString("_none_\n")
		return
	}
	b.WriteString("| " + strings.Join(t.headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.headers)) + "\n")
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(escapeMarkdown(c), "|", `\|`)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

var markdownEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
