package tui

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func writeSkin(t *testing.T, dir, name, body string) {
	t.Helper()
	skins := filepath.Join(dir, "skins")
	if err := os.MkdirAll(skins, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skins, name+".yml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitializeSkinMergesDefaults(t *testing.T) {
	t.Cleanup(func() { applySkin(DefaultSkin) })
	dir := t.TempDir()
	writeSkin(t, dir, "ocean", "name: ocean\ncolors:\n  up: \"#00FF00\"\n  accent: \"45\"\n")

	if err := InitializeSkin("ocean", dir); err != nil {
		t.Fatalf("InitializeSkin: %v", err)
	}
	if ColorGreen != lipgloss.Color("#00FF00") {
		t.Errorf("ColorGreen = %q, want #00FF00", ColorGreen)
	}
	if ColorBlue != lipgloss.Color("45") {
		t.Errorf("ColorBlue = %q, want 45", ColorBlue)
	}
	if ColorRed != lipgloss.Color(DefaultSkin.Colors.Down) {
		t.Errorf("ColorRed = %q, want default %q", ColorRed, DefaultSkin.Colors.Down)
	}
}

func TestInitializeSkinFallsBack(t *testing.T) {
	t.Cleanup(func() { applySkin(DefaultSkin) })
	dir := t.TempDir()

	if err := InitializeSkin("missing", dir); err == nil {
		t.Fatal("expected error for missing skin")
	}
	if ColorGreen != lipgloss.Color(DefaultSkin.Colors.Up) {
		t.Errorf("ColorGreen = %q, want default", ColorGreen)
	}

	writeSkin(t, dir, "broken", "colors: [not, a, map\n")
	if err := InitializeSkin("broken", dir); err == nil {
		t.Fatal("expected parse error")
	}

	if err := InitializeSkin("", dir); err != nil {
		t.Fatalf("empty skin name: %v", err)
	}
}

func TestLoadSkinNamesFromFile(t *testing.T) {
	dir := t.TempDir()
	writeSkin(t, dir, "plain", "colors:\n  down: \"1\"\n")

	skin, err := LoadSkin(filepath.Join(dir, "skins", "plain.yml"))
	if err != nil {
		t.Fatalf("LoadSkin: %v", err)
	}
	if skin.Name != "plain.yml" {
		t.Errorf("Name = %q", skin.Name)
	}
	if skin.Colors.Down != "1" || skin.Colors.Bar != DefaultSkin.Colors.Bar {
		t.Errorf("Colors = %+v", skin.Colors)
	}
}
