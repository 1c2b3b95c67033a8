package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

// renderMoversChart draws the absolute 24h change of the top movers as bars,
// green for gainers and red for losers.
func renderMoversChart(movers []model.Quote, width, height int) string {
	if len(movers) == 0 {
		return helpStyle.Render("No data available")
	}

	chartHeight := max(4, height-1)
	chartWidth := max(20, width)

	barWidth := 3
	maxBars := chartWidth / (barWidth + 1)
	if maxBars <= 0 {
		return helpStyle.Render("Too narrow")
	}
	if len(movers) > maxBars {
		movers = movers[:maxBars]
	}

	bc := barchart.New(chartWidth, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
	)

	gain := lipgloss.NewStyle().Foreground(ColorGreen).Background(ColorGreen)
	loss := lipgloss.NewStyle().Foreground(ColorRed).Background(ColorRed)

	var legend []string
	for _, q := range movers {
		style := gain
		if q.ChangePercent < 0 {
			style = loss
		}
		label := shortSymbol(q.Symbol)
		bc.Push(barchart.BarData{
			Label: truncate(label, barWidth),
			Values: []barchart.BarValue{
				{Name: q.Symbol, Value: math.Abs(q.ChangePercent), Style: style},
			},
		})
		legend = append(legend, changeStyle(q.ChangePercent).Render(fmt.Sprintf("%s %+.1f%%", label, q.ChangePercent)))
	}
	bc.Draw()

	return lipgloss.JoinVertical(lipgloss.Left, bc.View(), truncate(strings.Join(legend, "  "), chartWidth))
}
