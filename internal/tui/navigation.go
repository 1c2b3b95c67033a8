package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/cryptomonitor/internal/bus"
)

// handleKeyPress routes keys to the help overlay, the filter input or the
// dashboard shortcuts, in that order.
func (m *DashboardModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}

	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Escape, m.keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}

	if m.filterActive {
		return m.handleFilterKey(msg)
	}

	return m.handleGlobalKeys(msg)
}

// handleFilterKey edits the coin filter. Every edit is published so the
// marquees and table follow as the user types.
func (m *DashboardModel) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "escape", "esc":
		m.filterActive = false
		m.filterInput.Blur()
		m.filterInput.SetValue("")
		m.publishFilter()
		return m, nil
	case "enter":
		m.filterActive = false
		m.filterInput.Blur()
		return m, nil
	}

	before := m.filterInput.Value()
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	if m.filterInput.Value() != before {
		m.publishFilter()
	}
	return m, cmd
}

func (m *DashboardModel) publishFilter() {
	m.filters.Publish(bus.CoinFilter{Query: m.filterInput.Value()})
}

// handleGlobalKeys handles dashboard-level shortcuts.
func (m *DashboardModel) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys

	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit

	case key.Matches(msg, k.Help):
		m.showHelp = true

	case key.Matches(msg, k.Escape):
		if m.filterInput.Value() != "" {
			m.filterInput.SetValue("")
			m.publishFilter()
		}

	case key.Matches(msg, k.Filter):
		m.filterActive = true
		m.filterInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, k.Up):
		m.moveSelection(-1)
	case key.Matches(msg, k.Down):
		m.moveSelection(1)
	case key.Matches(msg, k.Home):
		m.selected = 0
	case key.Matches(msg, k.End):
		m.selected = max(0, len(m.visible)-1)

	case key.Matches(msg, k.NextView):
		if m.body == BodyTable {
			m.body = BodyHeatmap
		} else {
			m.body = BodyTable
		}

	case key.Matches(msg, k.Pause):
		m.paused = !m.paused

	case key.Matches(msg, k.Refresh):
		if !m.tickInFlight {
			m.tickInFlight = true
			return m, m.fetchCmd()
		}

	case key.Matches(msg, k.Faster):
		m.setVelocity(m.velocity * 1.5)
	case key.Matches(msg, k.Slower):
		m.setVelocity(m.velocity / 1.5)

	case key.Matches(msg, k.StopMarquees):
		held := !m.live.Held()
		m.live.SetHeld(held)
		m.trending.SetHeld(held)
	}
	return m, nil
}
