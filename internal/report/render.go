// Package report renders an engine.Report for people and machines.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/style"
)

// Format is an output encoding for a report.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatMarkdown, FormatJSON, FormatYAML}

// ParseFormat resolves a format name. "md" and "yml" are accepted aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q (want one of text, markdown, json, yaml)", s)
}

// Render writes rep to w in the given format.
func Render(w io.Writer, rep *engine.Report, f Format) error {
	switch f {
	case FormatText:
		return writeText(w, build(rep))
	case FormatMarkdown:
		return writeMarkdown(w, build(rep))
	case FormatJSON:
		style.PrintJSON(w, rep)
		return nil
	case FormatYAML:
		style.PrintYAML(w, rep)
		return nil
	}
	return fmt.Errorf("unknown report format %q", f)
}
