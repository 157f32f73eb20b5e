// Package ui renders CLI output: status glyphs, task tables and sync
// summaries. Colour follows the terminal and honours NO_COLOR.
package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#86d993"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#b26a00", Dark: "#ffcc66"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ff7070"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#7fb4ff"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8a8a8a"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
)

// Init picks the colour profile for w. NO_COLOR, or a w that is not a
// terminal, disables colour.
func Init(w io.Writer) {
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
}

// DisableColor forces plain output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }

// HumanSize formats a byte count.
func HumanSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
