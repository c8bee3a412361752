package styles

import "github.com/charmbracelet/lipgloss"

// Theme is one color scheme. The surfaces each get their own accent so the
// user can tell the panes apart at a glance.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	BgSurface  lipgloss.Color
	BgElevated lipgloss.Color

	TextPrimary lipgloss.Color
	TextMuted   lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	Border lipgloss.Color

	SurfaceMain lipgloss.Color
	SurfaceLeft lipgloss.Color
}

var DarkTheme = Theme{
	Primary:   lipgloss.Color("#B39DDB"),
	Secondary: lipgloss.Color("#90CAF9"),
	Accent:    lipgloss.Color("#FFCC80"),

	BgSurface:  lipgloss.Color("#141419"),
	BgElevated: lipgloss.Color("#1E1E2A"),

	TextPrimary: lipgloss.Color("#E0E0E0"),
	TextMuted:   lipgloss.Color("#545454"),

	Success: lipgloss.Color("#A5D6A7"),
	Warning: lipgloss.Color("#FFF59D"),
	Error:   lipgloss.Color("#EF9A9A"),

	Border: lipgloss.Color("#333333"),

	SurfaceMain: lipgloss.Color("#81D4FA"),
	SurfaceLeft: lipgloss.Color("#CE93D8"),
}

var LightTheme = Theme{
	Primary:   lipgloss.Color("#5E35B1"),
	Secondary: lipgloss.Color("#1E88E5"),
	Accent:    lipgloss.Color("#EF6C00"),

	BgSurface:  lipgloss.Color("#FFFFFF"),
	BgElevated: lipgloss.Color("#F4F4F5"),

	TextPrimary: lipgloss.Color("#333333"),
	TextMuted:   lipgloss.Color("#A1A1AA"),

	Success: lipgloss.Color("#2E7D32"),
	Warning: lipgloss.Color("#F59E0B"),
	Error:   lipgloss.Color("#C62828"),

	Border: lipgloss.Color("#E4E4E7"),

	SurfaceMain: lipgloss.Color("#0277BD"),
	SurfaceLeft: lipgloss.Color("#8E24AA"),
}

// CurrentTheme is picked at startup from the terminal background.
var CurrentTheme = DarkTheme

type Adaptive = lipgloss.AdaptiveColor

func adaptive(pick func(Theme) lipgloss.Color) Adaptive {
	return Adaptive{Light: string(pick(LightTheme)), Dark: string(pick(DarkTheme))}
}

var (
	FgPrimary = adaptive(func(t Theme) lipgloss.Color { return t.Primary })
	FgText    = adaptive(func(t Theme) lipgloss.Color { return t.TextPrimary })
	FgMuted   = adaptive(func(t Theme) lipgloss.Color { return t.TextMuted })
	FgError   = adaptive(func(t Theme) lipgloss.Color { return t.Error })
	FgSuccess = adaptive(func(t Theme) lipgloss.Color { return t.Success })
	FgAccent  = adaptive(func(t Theme) lipgloss.Color { return t.Accent })

	BorderColor = adaptive(func(t Theme) lipgloss.Color { return t.Border })
)

// SurfaceColor is the accent for a canvas pane.
func SurfaceColor(surface string) Adaptive {
	if surface == "left" {
		return adaptive(func(t Theme) lipgloss.Color { return t.SurfaceLeft })
	}
	return adaptive(func(t Theme) lipgloss.Color { return t.SurfaceMain })
}

// GlamourStyle names the markdown style matching the terminal.
func GlamourStyle() string {
	if CurrentTheme == LightTheme {
		return "light"
	}
	return "dark"
}

func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
}
