package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/cryptomonitor/internal/bus"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

// BodyView selects what the lower-left pane shows.
type BodyView int

const (
	BodyTable BodyView = iota
	BodyHeatmap
)

const (
	minScrollSpeed = 1.0
	maxScrollSpeed = 200.0
)

// Options configures a DashboardModel.
type Options struct {
	UpdateInterval     time.Duration
	FrameInterval      time.Duration
	ScrollSpeed        float64 // cells per second
	TrendingLimit      int
	ReverseScrollWheel bool
	DataSource         string // shown in the status bar
}

func (o Options) withDefaults() Options {
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = model.DefaultUpdateInterval
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = model.DefaultFrameInterval
	}
	if o.ScrollSpeed <= 0 {
		o.ScrollSpeed = model.DefaultScrollSpeed
	}
	if o.TrendingLimit <= 0 {
		o.TrendingLimit = model.DefaultTrendingLimit
	}
	return o
}

// FilterState holds the coin filter input and the applied query.
type FilterState struct {
	filterInput  textinput.Model
	filterActive bool
	filterQuery  string

	filters      *bus.Topic[bus.CoinFilter]
	filterSub    <-chan bus.CoinFilter
	filterCancel func()
}

// MarketState holds the latest market data pulled from the reader.
type MarketState struct {
	quotes      []model.Quote // unfiltered, as fetched
	visible     []model.Quote // after the coin filter
	movers      []model.Quote
	tradeCounts map[string]int64
	loaded      bool
}

// RefreshState tracks the periodic data refresh.
type RefreshState struct {
	updateInterval    time.Duration
	paused            bool
	tickInFlight      bool
	lastTickAt        time.Time
	consecutiveErrors int
	lastError         string
	lastErrorAt       time.Time
}

// DashboardModel is the market dashboard: two marquees over a quotes table or
// heatmap and a movers chart.
type DashboardModel struct {
	FilterState
	MarketState
	RefreshState

	keys     KeyMap
	help     help.Model
	showHelp bool

	width  int
	height int

	live          *Marquee
	trending      *Marquee
	frameInterval time.Duration
	framing       bool
	velocity      float64

	selected           int
	body               BodyView
	reverseScrollWheel bool
	trendingLimit      int

	reader     model.QuoteReader
	dataSource string
}

// TickMsg triggers a data refresh.
type TickMsg time.Time

type dataLoadedMsg struct {
	quotes      []model.Quote
	movers      []model.Quote
	tradeCounts []model.SymbolCount
	err         error
}

type filterChangedMsg bus.CoinFilter

// NewDashboardModel creates a dashboard reading from reader. Filter changes
// travel over b so other subscribers see them too; a nil b gets a private bus.
func NewDashboardModel(reader model.QuoteReader, b *bus.Bus, opts Options) *DashboardModel {
	opts = opts.withDefaults()
	if b == nil {
		b = bus.New()
	}

	filterInput := textinput.New()
	filterInput.Placeholder = "Filter coins by symbol or name..."
	filterInput.CharLimit = 64

	m := &DashboardModel{
		FilterState: FilterState{
			filterInput: filterInput,
			filters:     bus.CoinFilters(b),
		},
		RefreshState: RefreshState{
			updateInterval: opts.UpdateInterval,
		},
		keys:               DefaultKeyMap(),
		help:               help.New(),
		live:               NewMarquee("Live Prices", opts.ScrollSpeed, opts.ReverseScrollWheel),
		trending:           NewMarquee("Trending", opts.ScrollSpeed, opts.ReverseScrollWheel),
		frameInterval:      opts.FrameInterval,
		velocity:           opts.ScrollSpeed,
		reverseScrollWheel: opts.ReverseScrollWheel,
		trendingLimit:      opts.TrendingLimit,
		reader:             reader,
		dataSource:         opts.DataSource,
	}
	m.filterSub, m.filterCancel = m.filters.Subscribe(8)
	return m
}

// Init starts the refresh loop, the loading spinner and the filter subscription.
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return TickMsg(time.Now()) },
		m.startSpinnerIfNeeded(),
		m.waitForFilter(),
	)
}

// Close releases the filter subscription.
func (m *DashboardModel) Close() {
	if m.filterCancel != nil {
		m.filterCancel()
	}
}

func (m *DashboardModel) waitForFilter() tea.Cmd {
	ch := m.filterSub
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return filterChangedMsg(f)
	}
}

// fetchCmd reads quotes, movers and trade counts off the UI goroutine.
func (m *DashboardModel) fetchCmd() tea.Cmd {
	reader := m.reader
	limit := m.trendingLimit
	return func() tea.Msg {
		var msg dataLoadedMsg
		if reader == nil {
			return msg
		}
		quotes, err := reader.LatestQuotes(model.QuoteFilter{})
		if err != nil {
			msg.err = err
			return msg
		}
		msg.quotes = quotes

		if movers, err := reader.TrendingCoins(limit); err != nil {
			msg.err = err
		} else {
			msg.movers = movers
		}
		if counts, err := reader.TradeCounts(); err != nil {
			if msg.err == nil {
				msg.err = err
			}
		} else {
			msg.tradeCounts = counts
		}
		return msg
	}
}

func (m *DashboardModel) scheduleTick() tea.Cmd {
	return tea.Tick(m.updateInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// applyData stores a fetch result. It returns a command that starts the
// marquee frame loop when there is something to animate.
func (m *DashboardModel) applyData(msg dataLoadedMsg) tea.Cmd {
	m.tickInFlight = false
	m.lastTickAt = time.Now()

	if msg.err != nil {
		m.consecutiveErrors++
		m.lastError = msg.err.Error()
		m.lastErrorAt = time.Now()
	} else {
		m.consecutiveErrors = 0
	}

	if msg.quotes == nil && msg.err != nil {
		return nil
	}
	m.loaded = true
	m.quotes = msg.quotes
	if msg.movers != nil {
		m.movers = msg.movers
	}
	if msg.tradeCounts != nil {
		m.tradeCounts = make(map[string]int64, len(msg.tradeCounts))
		for _, c := range msg.tradeCounts {
			m.tradeCounts[c.Symbol] = c.Count
		}
	}
	return m.refilter()
}

// refilter applies the coin filter to the cached data and pushes the result
// into the marquees.
func (m *DashboardModel) refilter() tea.Cmd {
	m.visible = filterQuotes(m.quotes, m.filterQuery)
	m.live.SetItems(displayItems(m.visible))
	m.trending.SetItems(displayItems(filterQuotes(m.movers, m.filterQuery)))

	if m.selected >= len(m.visible) {
		m.selected = max(0, len(m.visible)-1)
	}
	return m.startFrames()
}

func (m *DashboardModel) startFrames() tea.Cmd {
	if m.framing || !m.animating() {
		return nil
	}
	m.framing = true
	return frameCmd(m.frameInterval)
}

func (m *DashboardModel) animating() bool {
	return m.live.Animating() || m.trending.Animating()
}

// liveUpdatesPaused reports whether data refresh is suspended.
func (m *DashboardModel) liveUpdatesPaused() bool {
	return m.paused
}

// setVelocity clamps and applies the scroll speed to both marquees.
func (m *DashboardModel) setVelocity(v float64) {
	v = min(max(v, minScrollSpeed), maxScrollSpeed)
	m.velocity = v
	m.live.SetVelocity(v)
	m.trending.SetVelocity(v)
}

// SelectedQuote returns the highlighted table row.
func (m *DashboardModel) SelectedQuote() (model.Quote, bool) {
	if m.selected < 0 || m.selected >= len(m.visible) {
		return model.Quote{}, false
	}
	return m.visible[m.selected], true
}

func filterQuotes(quotes []model.Quote, query string) []model.Quote {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return quotes
	}
	out := make([]model.Quote, 0, len(quotes))
	for _, q := range quotes {
		if strings.Contains(strings.ToLower(q.Symbol), query) || strings.Contains(strings.ToLower(q.Name), query) {
			out = append(out, q)
		}
	}
	return out
}

func displayItems(quotes []model.Quote) []model.DisplayItem {
	items := make([]model.DisplayItem, 0, len(quotes))
	for _, q := range quotes {
		items = append(items, q.DisplayItem())
	}
	return items
}
