package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const heatTileWidth = 14

// heatScale holds backgrounds from strongest loss to strongest gain.
var heatScale = []lipgloss.Color{"88", "124", "160", "238", "28", "34", "40"}

// heatColor buckets a 24h change into heatScale. Moves of 10% or more
// saturate.
func heatColor(pct float64) lipgloss.Color {
	mid := len(heatScale) / 2
	if math.Abs(pct) < 0.5 {
		return heatScale[mid]
	}
	step := int(math.Ceil(math.Min(math.Abs(pct), 10) / 10 * float64(mid)))
	if pct < 0 {
		return heatScale[mid-step]
	}
	return heatScale[mid+step]
}

// renderHeatmap lays quotes out as fixed-width tiles, wrapping to fit width.
func renderHeatmap(quotes []model.Quote, width, height int) string {
	if len(quotes) == 0 {
		return helpStyle.Render("No data available")
	}
	perRow := max(1, width/heatTileWidth)

	var rows []string
	var row []string
	for i, q := range quotes {
		tile := lipgloss.NewStyle().
			Width(heatTileWidth-1).
			MarginRight(1).
			Background(heatColor(q.ChangePercent)).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center).
			Render(truncate(shortSymbol(q.Symbol), heatTileWidth-2) + "\n" + fmt.Sprintf("%+.2f%%", q.ChangePercent))
		row = append(row, tile)
		if len(row) == perRow || i == len(quotes)-1 {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
		if height > 0 && len(rows)*2 >= height {
			break
		}
	}
	return strings.Join(rows, "\n")
}

// shortSymbol drops the quote asset from a pair symbol.
func shortSymbol(symbol string) string {
	for _, suffix := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if s, ok := strings.CutSuffix(symbol, suffix); ok && s != "" {
			return s
		}
	}
	return symbol
}
