package ui

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/tempnode/internal/collector"
)

// FeedEventMsg carries one live feed event into the watch model.
type FeedEventMsg collector.Event

// FeedClosedMsg reports that the live feed ended.
type FeedClosedMsg struct{ Err error }

type refreshMsg time.Time

type watchKeyMap struct {
	Quit key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k watchKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

// WatchModel shows the latest state of every sensor a collector knows,
// updated from its live feed.
type WatchModel struct {
	source  string
	spinner spinner.Model
	help    help.Model
	keys    watchKeyMap
	sensors map[int]collector.Sensor
	last    *collector.Event
	events  int
	closed  bool
	err     error
	width   int
	now     func() time.Time
}

// NewWatchModel seeds the model with an initial sensor list.
func NewWatchModel(source string, initial []collector.Sensor) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	m := WatchModel{
		source:  source,
		spinner: s,
		help:    help.New(),
		keys: watchKeyMap{
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
		},
		sensors: make(map[int]collector.Sensor, len(initial)),
		width:   GetTerminalWidth(),
		now:     time.Now,
	}
	for _, sn := range initial {
		m.sensors[sn.ID] = sn
	}
	return m
}

func refresh() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case refreshMsg:
		return m, refresh()
	case FeedEventMsg:
		ev := collector.Event(msg)
		sn := ev.Sensor
		sn.Readings = nil
		m.sensors[sn.ID] = sn
		m.last = &ev
		m.events++
	case FeedClosedMsg:
		m.closed = true
		m.err = msg.Err
	}
	return m, nil
}

// Sensors returns the tracked sensors ordered by ID.
func (m WatchModel) Sensors() []collector.Sensor {
	out := make([]collector.Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(NewHeader("Collector Watch", m.source).SetWidth(m.width).Render())
	b.WriteString("\n\n")
	b.WriteString("  " + m.status())
	b.WriteString("\n\n")

	if len(m.sensors) == 0 {
		b.WriteString(StepPendingStyle.Render("  No sensors registered"))
	} else {
		b.WriteString(RenderSensorTable(m.Sensors(), m.now()))
	}
	b.WriteString("\n\n  ")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func (m WatchModel) status() string {
	switch {
	case m.closed && m.err != nil:
		return ErrorMessageStyle.Render(FailureMarker + " Feed lost: " + m.err.Error())
	case m.closed:
		return StepPendingStyle.Render("Feed closed")
	case m.last == nil:
		return m.spinner.View() + " " + StepPendingStyle.Render("Waiting for reports...")
	}

	ev := m.last
	what := ev.Kind
	if ev.Kind == collector.KindReading && ev.Sensor.DisplayTempF != nil {
		what = fmt.Sprintf("reading %.1f°F", *ev.Sensor.DisplayTempF)
	}
	line := fmt.Sprintf("%s %d events, last: sensor %d %s at %s",
		m.spinner.View(), m.events, ev.Sensor.ID, what, ev.At.Local().Format("15:04:05"))
	return StepCompleteStyle.Render(line)
}

// RunWatch runs the watch view against the collector at base until the user
// quits or ctx is cancelled.
func RunWatch(ctx context.Context, base string) error {
	feed, err := collector.FeedURL(base)
	if err != nil {
		return err
	}
	initial, err := collector.FetchSensors(ctx, http.DefaultClient, base)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewWatchModel(base, initial), tea.WithContext(ctx), tea.WithAltScreen())

	go func() {
		err := collector.Subscribe(ctx, feed, func(ev collector.Event) {
			p.Send(FeedEventMsg(ev))
		})
		p.Send(FeedClosedMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
