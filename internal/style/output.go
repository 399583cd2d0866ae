package style

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	// Color palette
	ErrorColor       = lipgloss.Color("#FF6B6B")
	WarningColor     = lipgloss.Color("#FFA726")
	SuccessColor     = lipgloss.Color("#66BB6A")
	InfoColor        = lipgloss.Color("#42A5F5")
	MutedColor       = lipgloss.Color("#6C757D")
	AccentColor      = lipgloss.Color("#7C3AED")
	PrimaryTextColor = lipgloss.Color("#E4E4E7")
	ErrorBgColor     = lipgloss.Color("#3B1219")

	// Text styles
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(MutedColor)
	AccentStyle  = lipgloss.NewStyle().Foreground(AccentColor)

	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryTextColor).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(AccentColor).
			Bold(true).
			Underline(true).
			MarginTop(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(22)

	ScoreBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(AccentColor).
			Padding(0, 2).
			Margin(0, 1)

	WarningBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(WarningColor).
			Padding(0, 1).
			Margin(0, 1)
)

// SeverityStyle maps a finding severity to a text style.
func SeverityStyle(severity string) lipgloss.Style {
	switch strings.ToUpper(severity) {
	case "SEVERE", "CRITICAL", "HIGH", "POOR":
		return ErrorStyle
	case "MEDIUM", "MODERATE", "FAIR":
		return WarningStyle
	case "LOW", "GOOD", "EXCELLENT":
		return SuccessStyle
	default:
		return MutedStyle
	}
}

// SeverityLabel renders a severity in its terminal colour.
func SeverityLabel(severity string) string {
	var c *color.Color
	switch strings.ToUpper(severity) {
	case "SEVERE", "CRITICAL", "HIGH", "POOR":
		c = color.New(color.FgRed, color.Bold)
	case "MEDIUM", "MODERATE", "FAIR":
		c = color.New(color.FgYellow, color.Bold)
	case "LOW", "GOOD", "EXCELLENT":
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgWhite)
	}
	return c.Sprint(severity)
}

// ScoreStyle picks the colour of a 0-100 health score.
func ScoreStyle(score int) lipgloss.Style {
	switch {
	case score >= 85:
		return SuccessStyle
	case score >= 70:
		return InfoStyle
	case score >= 50:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

// PrintJSON outputs data as indented JSON.
func PrintJSON(w io.Writer, data any) {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding JSON: %v\n", err)
	}
}

// PrintYAML outputs data as YAML.
func PrintYAML(w io.Writer, data any) {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding YAML: %v\n", err)
	}
	encoder.Close()
}

func SuccessIcon() string {
	return SuccessStyle.Render("✓")
}

func ErrorIcon() string {
	return ErrorStyle.Render("✗")
}

func WarningIcon() string {
	return WarningStyle.Render("⚠")
}

func InfoIcon() string {
	return InfoStyle.Render("ℹ")
}

func SkipIcon() string {
	return MutedStyle.Render("–")
}

// Success prints a success message with styling
func Success(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", SuccessIcon(), lipgloss.NewStyle().Foreground(SuccessColor).Render(message))
}

// Error prints an error message with styling
func Error(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ErrorIcon(), lipgloss.NewStyle().Foreground(ErrorColor).Render(message))
}

// Warning prints a warning message with styling
func Warning(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", WarningIcon(), lipgloss.NewStyle().Foreground(WarningColor).Render(message))
}

// Info prints an info message with styling
func Info(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", InfoIcon(), lipgloss.NewStyle().Foreground(InfoColor).Render(message))
}
