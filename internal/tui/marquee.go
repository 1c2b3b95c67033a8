package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
	"github.com/tinytelemetry/cryptomonitor/internal/ticker"
)

const (
	marqueeSeparator = "   •   "
	marqueeLabelW    = 14
	defaultWheelStep = 3.0
)

// FrameMsg drives marquee animation.
type FrameMsg time.Time

func frameCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return FrameMsg(t) })
}

// Marquee renders a one-line infinite scrolling strip of display items.
// It occupies a single terminal row: a fixed-width label followed by the strip.
type Marquee struct {
	title  string
	ticker *ticker.Ticker
	items  []model.DisplayItem

	segment      string // one rendered repetition
	segmentWidth int

	x, y, width int // screen bounds of the whole row

	hovered      bool
	held         bool // paused from the keyboard
	dragging     bool
	lastX        int
	lastFrame    time.Time
	reverseWheel bool
	wheelStep    float64
}

// NewMarquee creates a marquee scrolling at velocity cells per second.
func NewMarquee(title string, velocity float64, reverseWheel bool) *Marquee {
	m := &Marquee{
		title:        title,
		reverseWheel: reverseWheel,
		wheelStep:    defaultWheelStep,
	}
	m.ticker = ticker.New(velocity, m.loopWidth)
	return m
}

func (m *Marquee) loopWidth() float64 { return float64(m.segmentWidth) }

// Ticker exposes the underlying offset state.
func (m *Marquee) Ticker() *ticker.Ticker { return m.ticker }

// Title returns the marquee label.
func (m *Marquee) Title() string { return m.title }

// SetItems replaces the displayed items. The offset is kept and re-wrapped so
// a data refresh does not make the strip jump.
func (m *Marquee) SetItems(items []model.DisplayItem) {
	m.items = append([]model.DisplayItem(nil), items...)
	m.segment = renderSegment(m.items)
	m.segmentWidth = lipgloss.Width(m.segment)

	switch {
	case len(m.items) == 0:
		// An empty set leaves the ticker idle; the strip shows a placeholder.
		_ = m.ticker.Initialize(nil)
		m.lastFrame = time.Time{}
	case m.ticker.Phase() == ticker.PhaseIdle:
		_ = m.ticker.Initialize(m.items)
	default:
		_ = m.ticker.SetItems(m.items)
	}
}

// Items returns the items currently shown.
func (m *Marquee) Items() []model.DisplayItem { return m.items }

// SetBounds records where the marquee row is drawn, for mouse hit testing.
func (m *Marquee) SetBounds(x, y, width int) {
	m.x, m.y, m.width = x, y, width
}

// SetVelocity changes the scroll speed.
func (m *Marquee) SetVelocity(v float64) { m.ticker.SetVelocity(v) }

// Animating reports whether the marquee needs frames.
func (m *Marquee) Animating() bool {
	return m.ticker.Phase() != ticker.PhaseIdle
}

// Advance applies the time elapsed since the previous frame.
func (m *Marquee) Advance(now time.Time) {
	if m.lastFrame.IsZero() || now.Before(m.lastFrame) {
		m.lastFrame = now
		return
	}
	dt := now.Sub(m.lastFrame)
	m.lastFrame = now
	m.ticker.Tick(dt)
}

// SetHeld pauses or resumes autoplay independently of hover.
func (m *Marquee) SetHeld(held bool) {
	m.held = held
	m.syncPause()
}

// Held reports whether autoplay was paused from the keyboard.
func (m *Marquee) Held() bool { return m.held }

func (m *Marquee) syncPause() {
	if m.held || m.hovered {
		m.ticker.Pause()
	} else {
		m.ticker.Resume()
	}
}

func (m *Marquee) contains(x, y int) bool {
	return y == m.y && x >= m.x+marqueeLabelW && x < m.x+m.width
}

// HandleMouse reacts to pointer input and reports whether the event was consumed.
func (m *Marquee) HandleMouse(msg tea.MouseMsg) bool {
	inside := m.contains(msg.X, msg.Y)

	switch msg.Action {
	case tea.MouseActionMotion:
		if m.dragging {
			m.ticker.OnDragDelta(float64(msg.X - m.lastX))
			m.lastX = msg.X
			return true
		}
		if inside != m.hovered {
			m.hovered = inside
			m.syncPause()
		}
		return inside

	case tea.MouseActionPress:
		if !inside {
			return false
		}
		switch msg.Button {
		case tea.MouseButtonLeft:
			m.dragging = true
			m.lastX = msg.X
			m.ticker.SetDragging(true)
		case tea.MouseButtonWheelUp:
			m.wheel(-m.wheelStep)
		case tea.MouseButtonWheelDown:
			m.wheel(m.wheelStep)
		case tea.MouseButtonWheelLeft:
			m.ticker.OnDragDelta(m.wheelStep)
		case tea.MouseButtonWheelRight:
			m.ticker.OnDragDelta(-m.wheelStep)
		}
		return true

	case tea.MouseActionRelease:
		if !m.dragging {
			return false
		}
		m.dragging = false
		m.ticker.SetDragging(false)
		m.hovered = inside
		m.syncPause()
		return true
	}
	return false
}

// ReleasePointer ends any drag and hover, for when pointer events stop
// arriving (focus lost).
func (m *Marquee) ReleasePointer() {
	if m.dragging {
		m.dragging = false
		m.ticker.SetDragging(false)
	}
	m.hovered = false
	m.syncPause()
}

func (m *Marquee) wheel(dy float64) {
	if m.reverseWheel {
		dy = -dy
	}
	m.ticker.OnWheelDelta(dy)
}

// View renders the marquee row at the given width.
func (m *Marquee) View(width int) string {
	label := chartTitleStyle.Width(marqueeLabelW).Render(truncate(m.title, marqueeLabelW-1))
	stripW := width - marqueeLabelW
	if stripW <= 0 {
		return label
	}
	return label + m.renderStrip(stripW)
}

func (m *Marquee) renderStrip(width int) string {
	if len(m.items) == 0 || m.segmentWidth == 0 {
		return helpStyle.Width(width).Render("No coins to show")
	}

	copies := width/m.segmentWidth + 2
	strip := strings.Repeat(m.segment, copies)
	start := int(math.Floor(-m.ticker.Offset()))
	return ansi.Cut(strip, start, start+width)
}

func renderSegment(items []model.DisplayItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString(labelStyle.Render(it.Label))
		b.WriteString(" ")
		b.WriteString(it.ValueString())
		if it.ChangePercent != nil {
			b.WriteString(" ")
			b.WriteString(formatChange(*it.ChangePercent))
		}
		b.WriteString(helpStyle.Render(marqueeSeparator))
	}
	return b.String()
}

func formatChange(pct float64) string {
	arrow := "▲"
	if pct < 0 {
		arrow = "▼"
	}
	return changeStyle(pct).Render(fmt.Sprintf("%s %.2f%%", arrow, math.Abs(pct)))
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	return ansi.Truncate(s, n, "…")
}
