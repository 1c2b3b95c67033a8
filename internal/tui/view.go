package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const (
	minWidth  = 60
	minHeight = 16

	chartPaneWidth = 36
	errorTTL       = 30 * time.Second
)

// View renders the dashboard
func (m *DashboardModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Initializing dashboard..."
	}
	if m.width < minWidth || m.height < minHeight {
		return fmt.Sprintf("Terminal too small. Resize to at least %dx%d.", minWidth, minHeight)
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderDashboard()
}

func (m *DashboardModel) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.live.View(m.width),
		m.trending.View(m.width),
		m.renderFilter(),
	}

	bodyH := m.bodyHeight()
	if !m.loaded {
		sections = append(sections, renderLoadingPlaceholder(m.width, bodyH))
	} else {
		sections = append(sections, m.renderBody(bodyH))
	}
	sections = append(sections, m.renderStatusLine())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *DashboardModel) bodyHeight() int {
	return max(3, m.height-headerRows-statusLineRows)
}

func (m *DashboardModel) renderHeader() string {
	left := lipgloss.NewStyle().Bold(true).Foreground(ColorBlue).Background(ColorNavy).Render(" ◆ Crypto Monitor ")
	right := fmt.Sprintf(" %d coins • %s ", len(m.quotes), time.Now().Format("15:04:05"))
	gap := max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + barStyle.Render(strings.Repeat(" ", gap)+right)
}

func (m *DashboardModel) renderFilter() string {
	if m.filterActive {
		return truncate("Filter: "+m.filterInput.View(), m.width)
	}
	if m.filterQuery != "" {
		return truncate(helpStyle.Render(fmt.Sprintf("Filter: %q (%d of %d) • esc to clear", m.filterQuery, len(m.visible), len(m.quotes))), m.width)
	}
	return helpStyle.Render(truncate("Hover a strip to pause it • drag or scroll to move it • / to filter", m.width))
}

func (m *DashboardModel) renderBody(height int) string {
	chartW := chartPaneWidth
	if m.width < 100 {
		chartW = 0
	}
	leftW := m.width - chartW

	var left string
	switch m.body {
	case BodyHeatmap:
		left = m.renderPane("Heatmap (24h)", renderHeatmap(m.visible, leftW-4, height-3), leftW, height)
	default:
		left = m.renderPane("Quotes", m.renderTable(leftW-4, height-3), leftW, height)
	}
	if chartW == 0 {
		return left
	}
	right := m.renderPane("Top Movers", renderMoversChart(filterQuotes(m.movers, m.filterQuery), chartW-4, height-3), chartW, height)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *DashboardModel) renderPane(title, content string, width, height int) string {
	// Width/Height exclude the border.
	style := sectionStyle.Width(width - 2).Height(height - 2).MaxHeight(height)
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, chartTitleStyle.Render(title), content))
}

// tableWindow returns the slice bounds of visible rows that keep the
// selection on screen.
func (m *DashboardModel) tableWindow(rows int) (int, int) {
	n := len(m.visible)
	if rows <= 0 || n == 0 {
		return 0, 0
	}
	start := 0
	if m.selected >= rows {
		start = m.selected - rows + 1
	}
	return start, min(n, start+rows)
}

func (m *DashboardModel) renderTable(width, height int) string {
	if len(m.visible) == 0 {
		if m.filterQuery != "" {
			return helpStyle.Render("No coins match the filter")
		}
		return helpStyle.Render("No data available")
	}

	nameW := max(8, width-10-14-10-12-10)
	format := fmt.Sprintf("%%-10s %%-%ds %%14s %%10s %%12s %%10s", nameW)
	header := helpStyle.Render(truncate(fmt.Sprintf(format, "SYMBOL", "NAME", "PRICE", "24H", "VOLUME", "TRADES"), width))

	lines := []string{header}
	start, end := m.tableWindow(height - 1)
	for i := start; i < end; i++ {
		q := m.visible[i]
		change := fmt.Sprintf("%+.2f%%", q.ChangePercent)
		row := fmt.Sprintf(format,
			q.Symbol,
			truncate(q.Name, nameW),
			model.FormatPrice(q.Price),
			change,
			formatVolume(q.QuoteVolume),
			formatCount(m.tradeCounts[q.Symbol]),
		)
		row = truncate(row, width)
		if i == m.selected {
			row = selectedRowStyle.Render(row)
		} else {
			row = strings.Replace(row, change, changeStyle(q.ChangePercent).Render(change), 1)
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}

// renderStatusLine renders the status/help line at the bottom of the screen
func (m *DashboardModel) renderStatusLine() string {
	left := fmt.Sprintf(" [%s] ", m.dataSource)
	if m.dataSource == "" {
		left = " "
	}

	var center string
	switch {
	case m.filterActive:
		center = "Type to filter • Enter: Apply • ESC: Clear"
	case m.paused:
		center = "PAUSED (p to resume)"
	default:
		m.help.ShowAll = false
		center = m.help.View(m.keys)
	}

	var right string
	if m.lastError != "" && time.Since(m.lastErrorAt) < errorTTL {
		right = errorStyle.Render(fmt.Sprintf("error x%d: %s", m.consecutiveErrors, m.lastError))
	} else if !m.lastTickAt.IsZero() {
		right = fmt.Sprintf("updated %s", m.lastTickAt.Format("15:04:05"))
	}

	line := left + center
	gap := m.width - lipgloss.Width(line) - lipgloss.Width(right) - 1
	if gap < 1 {
		right = truncate(right, max(0, m.width-lipgloss.Width(line)-2))
		gap = 1
	}
	return barStyle.Width(m.width).MaxHeight(1).Render(truncate(line+strings.Repeat(" ", gap)+right, m.width))
}

func (m *DashboardModel) renderHelp() string {
	m.help.ShowAll = true
	body := lipgloss.JoinVertical(lipgloss.Left,
		chartTitleStyle.Render("Keys"),
		"",
		m.help.View(m.keys),
		"",
		helpStyle.Render("Mouse: hover a marquee to pause, drag or wheel to scroll it."),
		helpStyle.Render("?/h/esc: close"),
	)
	box := activeSectionStyle.Padding(1, 2).Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func formatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	}
	return fmt.Sprintf("%.0f", v)
}

func formatCount(n int64) string {
	if n == 0 {
		return "-"
	}
	return formatVolume(float64(n))
}
