package chat

import "strings"

type ThemeMode string

const (
	ThemeLight ThemeMode = "light"
	ThemeDark  ThemeMode = "dark"
)

// InitialTheme resolves the configured theme. "auto" and unknown values
// follow the terminal background.
func InitialTheme(setting string, hasDarkBackground bool) ThemeMode {
	switch strings.ToLower(strings.TrimSpace(setting)) {
	case string(ThemeLight):
		return ThemeLight
	case string(ThemeDark):
		return ThemeDark
	}
	if hasDarkBackground {
		return ThemeDark
	}
	return ThemeLight
}

func (m ThemeMode) Toggle() ThemeMode {
	if m == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
