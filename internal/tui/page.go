package tui

import tea "github.com/charmbracelet/bubbletea"

// Page represents a top-level screen in the TUI.
type Page interface {
	ID() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav is returned from Update to request a page switch.
type PageNav struct {
	PageID string
	Params interface{}
}

// DashboardPage adapts DashboardModel to the Page interface.
type DashboardPage struct {
	dashboard *DashboardModel
}

// NewDashboardPage wraps a dashboard as the "dashboard" page.
func NewDashboardPage(d *DashboardModel) *DashboardPage {
	return &DashboardPage{dashboard: d}
}

func (p *DashboardPage) ID() string    { return "dashboard" }
func (p *DashboardPage) Init() tea.Cmd { return p.dashboard.Init() }

func (p *DashboardPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	_, cmd := p.dashboard.Update(msg)
	return cmd, nil
}

// View ignores the passed size; the dashboard tracks it from WindowSizeMsg.
func (p *DashboardPage) View(_, _ int) string {
	return p.dashboard.View()
}
