package cli

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"
)

// Version is reported by the banner and the version subcommand.
const Version = "1.2.0"

// brand colors
var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorDim     = lipgloss.Color("#4E4E4E")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
)

// Logo lines — clean block font, no box-drawing corners
var logoLines = []string{
	" █████   ████  ██████ ██████  ████  █████   █████ ██████",
	" ██  ██ ██  ██   ██   ██     ██  ██ ██  ██ ██     ██    ",
	" █████  ██  ██   ██   █████  ██  ██ █████  ██ ███ █████ ",
	" ██  ██ ██  ██   ██   ██     ██  ██ ██ ██  ██  ██ ██    ",
	" █████   ████    ██   ██      ████  ██  ██  █████ ██████",
}

// Gradient colors top→bottom (cyan → blue → violet)
var logoGradient = []lipgloss.Color{
	lipgloss.Color("#00FFFF"),
	lipgloss.Color("#00CFFF"),
	lipgloss.Color("#009FFF"),
	lipgloss.Color("#006FFF"),
	lipgloss.Color("#5F5FFF"),
}

// BannerInfo carries the startup stats shown in the welcome banner.
type BannerInfo struct {
	Addr    string
	Bots    int
	Running int
	Config  string
}

// RenderBanner returns the styled welcome banner with gradient logo.
func RenderBanner(info BannerInfo, width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	tipStyle := lipgloss.NewStyle().Foreground(colorDim)
	greenStyle := lipgloss.NewStyle().Foreground(colorGreen)
	versionStyle := lipgloss.NewStyle().Foreground(colorDimCyan)

	// Render gradient logo
	var logo string
	if width >= 58 {
		for i, line := range logoLines {
			c := logoGradient[i%len(logoGradient)]
			logo += lipgloss.NewStyle().Foreground(c).Bold(true).Render(line) + "\n"
		}
	} else {
		// Compact fallback
		logo = lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render(" ◆  B O T F O R G E") + "\n"
	}

	ver := versionStyle.Render(fmt.Sprintf("  v%s", Version))

	// Stats
	addrLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Адрес "),
		valueStyle.Render("http://"+info.Addr),
	)
	botsLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Боты  "),
		greenStyle.Render(fmt.Sprintf("%d всего · %d активных", info.Bots, info.Running)),
	)

	cfg := info.Config
	if cfg == "" {
		cfg = "по умолчанию"
	}
	configLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Конфиг"),
		valueStyle.Render(cfg),
	)
	envLine := fmt.Sprintf("  %s %s/%s",
		labelStyle.Render("Среда "),
		labelStyle.Render(runtime.GOOS),
		labelStyle.Render(runtime.GOARCH),
	)

	tips := tipStyle.Render("  botforge chat · botforge logs · Ctrl+C остановка")

	return fmt.Sprintf("\n%s%s\n\n%s\n%s\n%s\n%s\n\n%s\n",
		logo, ver,
		addrLine, botsLine, configLine, envLine,
		tips,
	)
}
