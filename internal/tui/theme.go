package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// The editor must stay readable on light and dark terminals, so colors are
// adaptive and faint styling is only used on dark backgrounds.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

func faintIfDark(st lipgloss.Style) lipgloss.Style {
	if lipgloss.HasDarkBackground() {
		return st.Faint(true)
	}
	return st
}

var (
	colorMuted     lipgloss.TerminalColor = ac("240", "243")
	colorSurfaceFg lipgloss.TerminalColor = ac("235", "252")
	colorAccent    lipgloss.TerminalColor = ac("27", "62")
	colorBorder    lipgloss.TerminalColor = ac("250", "240")
	colorWarn      lipgloss.TerminalColor = ac("160", "203")
)

var (
	styleTitle      = lipgloss.NewStyle().Bold(true).Foreground(colorSurfaceFg)
	styleMuted      = faintIfDark(lipgloss.NewStyle().Foreground(colorMuted))
	styleWarn       = lipgloss.NewStyle().Foreground(colorWarn)
	stylePane       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	stylePaneActive = stylePane.BorderForeground(colorAccent)
)

// themeStyle resolves a configured theme (auto|dark|light) to the glamour
// style name. Auto consults the environment before asking the terminal.
func themeStyle(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "light":
		return "light"
	case "dark":
		return "dark"
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("RICHSYNC_TUI_THEME"))); v == "light" || v == "dark" {
		return v
	}
	// COLORFGBG is often "fg;bg" (e.g. "15;0" => dark bg). Prefer it over
	// terminal queries, which can block.
	if v := strings.TrimSpace(os.Getenv("COLORFGBG")); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1])); err == nil {
			// Common xterm palette: 0-6 dark colors, 7-15 light colors.
			if bg >= 7 {
				return "light"
			}
			return "dark"
		}
	}
	if termenv.NewOutput(os.Stdout).HasDarkBackground() {
		return "dark"
	}
	return "light"
}
