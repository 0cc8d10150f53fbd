// Package viewer is a terminal browser for replay sessions. It lays the
// recorded traces out one row per action and colors each row by what the
// diagnostics stream says happened to it.
package viewer

import "github.com/charmbracelet/lipgloss"

// Row status glyphs.
const (
	GlyphPending   = "○"
	GlyphReplayed  = "✓"
	GlyphSkipped   = "⊘"
	GlyphRecovered = "⟳"
	GlyphAbandoned = "✗"
	GlyphSelected  = "▸"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var (
	rowPending   = lipgloss.NewStyle().Foreground(colorWhite)
	rowReplayed  = lipgloss.NewStyle().Foreground(colorGreen)
	rowSkipped   = lipgloss.NewStyle().Faint(true)
	rowRecovered = lipgloss.NewStyle().Foreground(colorYellow)
	rowAbandoned = lipgloss.NewStyle().Foreground(colorRed)
	rowSelected  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	traceHeader  = lipgloss.NewStyle().Bold(true).Foreground(colorDim)
)

var (
	statusBar    = lipgloss.NewStyle().Foreground(colorDim)
	keyStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	keyDescStyle = lipgloss.NewStyle().Foreground(colorDim)
	panelBorder  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)
)

func rowStyle(status Status) lipgloss.Style {
	switch status {
	case StatusReplayed:
		return rowReplayed
	case StatusSkipped:
		return rowSkipped
	case StatusRecovered:
		return rowRecovered
	case StatusAbandoned:
		return rowAbandoned
	default:
		return rowPending
	}
}

func statusGlyph(status Status) string {
	switch status {
	case StatusReplayed:
		return GlyphReplayed
	case StatusSkipped:
		return GlyphSkipped
	case StatusRecovered:
		return GlyphRecovered
	case StatusAbandoned:
		return GlyphAbandoned
	default:
		return GlyphPending
	}
}
