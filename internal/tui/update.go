package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	headerRows     = 4 // header bar, two marquees, filter line
	statusLineRows = 1
)

// Update handles messages
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.live.SetBounds(0, 1, m.width)
		m.trending.SetBounds(0, 2, m.width)
		m.help.Width = m.width
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		return m.handleMouseEvent(msg)

	case tea.BlurMsg:
		m.live.ReleasePointer()
		m.trending.ReleasePointer()
		return m, nil

	case TickMsg:
		// Keep the loop alive while paused or while a fetch is running.
		if m.liveUpdatesPaused() || m.tickInFlight {
			return m, m.scheduleTick()
		}
		m.tickInFlight = true
		return m, tea.Batch(m.fetchCmd(), m.scheduleTick())

	case dataLoadedMsg:
		return m, m.applyData(msg)

	case FrameMsg:
		at := time.Time(msg)
		m.live.Advance(at)
		m.trending.Advance(at)
		if !m.animating() {
			m.framing = false
			return m, nil
		}
		return m, frameCmd(m.frameInterval)

	case filterChangedMsg:
		m.filterQuery = msg.Query
		return m, tea.Batch(m.refilter(), m.waitForFilter())

	case SpinnerTickMsg:
		return m.handleSpinnerTick()
	}

	return m, nil
}

// handleMouseEvent processes mouse interactions
func (m *DashboardModel) handleMouseEvent(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.showHelp || m.filterActive {
		// A drag started before the overlay opened must still end.
		if msg.Action == tea.MouseActionRelease {
			m.live.HandleMouse(msg)
			m.trending.HandleMouse(msg)
		}
		return m, nil
	}

	// Both marquees see every event so hover can end on the one the pointer left.
	liveHit := m.live.HandleMouse(msg)
	trendingHit := m.trending.HandleMouse(msg)
	if liveHit || trendingHit {
		return m, nil
	}

	if msg.Action != tea.MouseActionPress {
		return m, nil
	}
	switch msg.Button {
	case tea.MouseButtonLeft:
		m.selectRowAt(msg.Y)
	case tea.MouseButtonWheelUp:
		if m.reverseScrollWheel {
			m.moveSelection(1)
		} else {
			m.moveSelection(-1)
		}
	case tea.MouseButtonWheelDown:
		if m.reverseScrollWheel {
			m.moveSelection(-1)
		} else {
			m.moveSelection(1)
		}
	}
	return m, nil
}

// selectRowAt maps a click inside the quotes table to a row.
func (m *DashboardModel) selectRowAt(y int) {
	if m.body != BodyTable {
		return
	}
	// pane border, pane title and column header sit above the first row
	row := y - headerRows - 3
	start, end := m.tableWindow(m.bodyHeight() - 4)
	if row < 0 || start+row >= end {
		return
	}
	m.selected = start + row
}

func (m *DashboardModel) moveSelection(delta int) {
	if len(m.visible) == 0 {
		m.selected = 0
		return
	}
	m.selected = min(max(m.selected+delta, 0), len(m.visible)-1)
}
