package ui

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette shared by every renderer in the package.
var (
	ColorAccent = lipgloss.Color("#58a6ff") // highlights, entity names
	ColorPass   = lipgloss.Color("#3fb950") // healthy, corroborated
	ColorWarn   = lipgloss.Color("#d29922") // degraded, low confidence
	ColorFail   = lipgloss.Color("#f85149") // failures
	ColorMuted  = lipgloss.Color("#8b949e") // chrome, hints
)

// Status icons prefixed to short messages.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

// RenderPass renders s in the success color.
func RenderPass(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return passStyle.Render(s)
}

// RenderWarn renders s in the warning color.
func RenderWarn(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return warnStyle.Render(s)
}

// RenderFail renders s in the failure color.
func RenderFail(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return failStyle.Render(s)
}

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return accentStyle.Render(s)
}

// RenderMuted renders s dimmed.
func RenderMuted(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return mutedStyle.Render(s)
}

// RenderBold renders s bold.
func RenderBold(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return boldStyle.Render(s)
}

// RenderCommand renders a runnable command suggestion.
func RenderCommand(s string) string {
	return RenderAccent(s)
}

// RenderKind colors an entity kind label: companies in accent, people
// in green, investors in amber, unknown dimmed.
func RenderKind(kind string) string {
	if !ShouldUseColor() {
		return kind
	}
	switch kind {
	case "company":
		return accentStyle.Render(kind)
	case "person":
		return passStyle.Render(kind)
	case "investor":
		return warnStyle.Render(kind)
	default:
		return mutedStyle.Render(kind)
	}
}

// RenderConfidence colors a confidence score by band: corroborated at
// 0.9 and above, solid at 0.7, anything lower needs scrutiny.
func RenderConfidence(c float64) string {
	s := fmt.Sprintf("%.2f", c)
	if !ShouldUseColor() {
		return s
	}
	switch {
	case c >= 0.9:
		return passStyle.Render(s)
	case c >= 0.7:
		return accentStyle.Render(s)
	default:
		return warnStyle.Render(s)
	}
}

// RenderMarkdown renders markdown for the terminal via glamour.
// Non-TTY callers get the raw markdown back so output stays pipeable.
func RenderMarkdown(md string) string {
	if !ShouldUseColor() {
		return md
	}
	// termenv probes the terminal once; a monochrome profile keeps the
	// raw markdown, otherwise the style follows the detected background.
	if termenv.ColorProfile() == termenv.Ascii {
		return md
	}
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	width := GetWidth()
	if width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
