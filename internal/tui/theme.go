package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette of the monitor (Tokyo Night).
type Theme struct {
	BgDark      lipgloss.Color
	TextPrimary lipgloss.Color
	TextDim     lipgloss.Color
	Border      lipgloss.Color
	Accent      lipgloss.Color
	Success     lipgloss.Color
	Warning     lipgloss.Color
	Error       lipgloss.Color
	Info        lipgloss.Color
}

var DefaultTheme = Theme{
	BgDark:      lipgloss.Color("#1a1b26"),
	TextPrimary: lipgloss.Color("#c0caf5"),
	TextDim:     lipgloss.Color("#565f89"),
	Border:      lipgloss.Color("#414868"),
	Accent:      lipgloss.Color("#7aa2f7"),
	Success:     lipgloss.Color("#9ece6a"),
	Warning:     lipgloss.Color("#e0af68"),
	Error:       lipgloss.Color("#f7768e"),
	Info:        lipgloss.Color("#7dcfff"),
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Base       lipgloss.Style
	Dim        lipgloss.Style
	Title      lipgloss.Style
	Label      lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	Error      lipgloss.Style
	Info       lipgloss.Style
	KeyBinding lipgloss.Style
	KeyHint    lipgloss.Style
	Panel      lipgloss.Style
	Gauge      lipgloss.Style
	GaugeEmpty lipgloss.Style
	Footer     lipgloss.Style
}

// NewStyles creates a new Styles instance from a Theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Base: lipgloss.NewStyle().Foreground(t.TextPrimary),
		Dim:  lipgloss.NewStyle().Foreground(t.TextDim),
		Title: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),
		Label:   lipgloss.NewStyle().Foreground(t.TextDim).Width(14),
		Success: lipgloss.NewStyle().Foreground(t.Success),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
		Info:    lipgloss.NewStyle().Foreground(t.Info),
		KeyBinding: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		KeyHint: lipgloss.NewStyle().Foreground(t.TextDim),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		Gauge:      lipgloss.NewStyle().Foreground(t.Accent),
		GaugeEmpty: lipgloss.NewStyle().Foreground(t.Border),
		Footer:     lipgloss.NewStyle().Foreground(t.TextDim),
	}
}

// DefaultStyles returns styles using the default theme.
var DefaultStyles = NewStyles(DefaultTheme)

// StatusIcon returns a colored connection indicator.
func StatusIcon(status string, s Styles) string {
	switch status {
	case "ok":
		return s.Success.Render("●")
	case "error":
		return s.Error.Render("●")
	case "busy":
		return s.Warning.Render("●")
	default:
		return s.Dim.Render("○")
	}
}
