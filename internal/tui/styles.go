package tui

import (
	"github.com/charmbracelet/lipgloss"

	"rag-chat/internal/chat"
)

var (
	lightBackground = lipgloss.Color("#f7f7f8")
	lightForeground = lipgloss.Color("#1f2328")
	lightPrimary    = lipgloss.Color("#1f2328")
	lightAccent     = lipgloss.Color("#0969da")
	lightMuted      = lipgloss.Color("#6e7781")
	lightBorder     = lipgloss.Color("#d0d7de")

	darkBackground = lipgloss.Color("#111827")
	darkForeground = lipgloss.Color("#f3f4f6")
	darkPrimary    = lipgloss.Color("#e5e7eb")
	darkAccent     = lipgloss.Color("#60a5fa")
	darkMuted      = lipgloss.Color("#9ca3af")
	darkBorder     = lipgloss.Color("#374151")

	colorSuccess = lipgloss.Color("#16a34a")
	colorError   = lipgloss.Color("#dc2626")
	colorInfo    = lipgloss.Color("#2563eb")
)

// Theme is the color scheme of one mode.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

func LightTheme() Theme {
	return Theme{
		Background: lightBackground,
		Foreground: lightForeground,
		Primary:    lightPrimary,
		Accent:     lightAccent,
		Muted:      lightMuted,
		Border:     lightBorder,
	}
}

func DarkTheme() Theme {
	return Theme{
		Background: darkBackground,
		Foreground: darkForeground,
		Primary:    darkPrimary,
		Accent:     darkAccent,
		Muted:      darkMuted,
		Border:     darkBorder,
		IsDark:     true,
	}
}

func themeFor(mode chat.ThemeMode) Theme {
	if mode == chat.ThemeDark {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds the styled components of the screen.
type Styles struct {
	Theme Theme

	Header       lipgloss.Style
	Footer       lipgloss.Style
	Panel        lipgloss.Style
	FocusedPanel lipgloss.Style
	Title        lipgloss.Style
	Muted        lipgloss.Style
	Body         lipgloss.Style
	Selected     lipgloss.Style

	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Context   lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
}

func NewStyles(theme Theme) Styles {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Padding(0, 1)

	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(theme.Background).
			Padding(0, 1).
			Bold(true),
		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),
		Panel:        panel,
		FocusedPanel: panel.BorderForeground(theme.Accent),
		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),
		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),
		Selected: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		User: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),
		Assistant: lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true),
		System: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),
		Context: lipgloss.NewStyle().
			Foreground(theme.Muted).
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		Success: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colorInfo),
	}
}

// Notice returns the style for a toast of level l.
func (s Styles) Notice(l chat.Level) lipgloss.Style {
	switch l {
	case chat.LevelSuccess:
		return s.Success
	case chat.LevelError:
		return s.Error
	default:
		return s.Info
	}
}
