package tui

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Skin is a named colour palette. Skins live in <configDir>/skins/<name>.yml;
// fields left empty inherit the built-in default.
type Skin struct {
	Name   string     `yaml:"name"`
	Colors SkinColors `yaml:"colors"`
}

// SkinColors holds lipgloss colour strings (ANSI index or #hex).
type SkinColors struct {
	Bar    string `yaml:"bar"`
	Text   string `yaml:"text"`
	Muted  string `yaml:"muted"`
	Accent string `yaml:"accent"`
	Up     string `yaml:"up"`
	Down   string `yaml:"down"`
	Border string `yaml:"border"`
}

// DefaultSkin is used when no skin is configured or a skin fails to load.
var DefaultSkin = Skin{
	Name: "default",
	Colors: SkinColors{
		Bar:    "#1B2A4A",
		Text:   "#F5F5F5",
		Muted:  "244",
		Accent: "39",
		Up:     "#2EBD85",
		Down:   "#F6465D",
		Border: "240",
	},
}

var (
	ColorNavy  lipgloss.Color
	ColorWhite lipgloss.Color
	ColorGray  lipgloss.Color
	ColorBlue  lipgloss.Color
	ColorGreen lipgloss.Color
	ColorRed   lipgloss.Color
	ColorLine  lipgloss.Color

	barStyle           lipgloss.Style
	sectionStyle       lipgloss.Style
	activeSectionStyle lipgloss.Style
	chartTitleStyle    lipgloss.Style
	helpStyle          lipgloss.Style
	labelStyle         lipgloss.Style
	upStyle            lipgloss.Style
	downStyle          lipgloss.Style
	selectedRowStyle   lipgloss.Style
	errorStyle         lipgloss.Style
)

func init() {
	applySkin(DefaultSkin)
}

// InitializeSkin loads and applies the named skin. On error the default skin
// stays active.
func InitializeSkin(name, configDir string) error {
	applySkin(DefaultSkin)
	if name == "" || name == DefaultSkin.Name {
		return nil
	}
	skin, err := LoadSkin(filepath.Join(configDir, "skins", name+".yml"))
	if err != nil {
		return err
	}
	applySkin(skin)
	return nil
}

// LoadSkin reads a skin file and fills unset colours from DefaultSkin.
func LoadSkin(path string) (Skin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skin{}, fmt.Errorf("reading skin: %w", err)
	}
	var skin Skin
	if err := yaml.Unmarshal(data, &skin); err != nil {
		return Skin{}, fmt.Errorf("parsing skin %s: %w", path, err)
	}

	d := DefaultSkin.Colors
	c := &skin.Colors
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&c.Bar, d.Bar}, {&c.Text, d.Text}, {&c.Muted, d.Muted}, {&c.Accent, d.Accent},
		{&c.Up, d.Up}, {&c.Down, d.Down}, {&c.Border, d.Border},
	} {
		if *f.dst == "" {
			*f.dst = f.def
		}
	}
	if skin.Name == "" {
		skin.Name = filepath.Base(path)
	}
	return skin, nil
}

func applySkin(s Skin) {
	ColorNavy = lipgloss.Color(s.Colors.Bar)
	ColorWhite = lipgloss.Color(s.Colors.Text)
	ColorGray = lipgloss.Color(s.Colors.Muted)
	ColorBlue = lipgloss.Color(s.Colors.Accent)
	ColorGreen = lipgloss.Color(s.Colors.Up)
	ColorRed = lipgloss.Color(s.Colors.Down)
	ColorLine = lipgloss.Color(s.Colors.Border)

	barStyle = lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite)
	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorLine).
		Padding(0, 1)
	activeSectionStyle = sectionStyle.BorderForeground(ColorBlue)
	chartTitleStyle = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	helpStyle = lipgloss.NewStyle().Foreground(ColorGray)
	labelStyle = lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)
	upStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	downStyle = lipgloss.NewStyle().Foreground(ColorRed)
	selectedRowStyle = lipgloss.NewStyle().Background(ColorLine).Foreground(ColorWhite)
	errorStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
}

// changeStyle picks the up/down colour for a percentage change.
func changeStyle(pct float64) lipgloss.Style {
	if pct < 0 {
		return downStyle
	}
	return upStyle
}
