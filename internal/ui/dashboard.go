package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/easyfire/internal/server"
)

// Temperature bar scale in °C
const (
	barMinCelsius = -20.0
	barMaxCelsius = 100.0
)

// ErrStreamClosed is reported when the update channel closes
var ErrStreamClosed = errors.New("snapshot stream closed")

// SnapshotMsg carries a snapshot received from the bridge
type SnapshotMsg struct {
	Snapshot *server.SnapshotMessage
}

// StreamErrMsg reports that the snapshot stream ended
type StreamErrMsg struct {
	Err error
}

// dashboardKeyMap defines key bindings for the dashboard
type dashboardKeyMap struct {
	Help key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Help, k.Quit}}
}

// DashboardModel is a live view of a bridge's sensor snapshots.
type DashboardModel struct {
	URL        string
	Snapshot   *server.SnapshotMessage
	Err        error
	Updates    int
	LastUpdate time.Time

	Width   int
	Height  int
	Spinner spinner.Model
	Bar     progress.Model
	Help    help.Model
	Keys    dashboardKeyMap

	updates <-chan tea.Msg
	now     func() time.Time
}

// NewDashboardModel creates a dashboard fed by updates. The channel carries
// SnapshotMsg and StreamErrMsg values.
func NewDashboardModel(url string, updates <-chan tea.Msg) DashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)

	return DashboardModel{
		URL:     url,
		Width:   MinTerminalWidth,
		Spinner: s,
		Bar:     bar,
		Help:    help.New(),
		Keys: dashboardKeyMap{
			Help: key.NewBinding(
				key.WithKeys("?"),
				key.WithHelp("?", "toggle help"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
		updates: updates,
		now:     time.Now,
	}
}

// waitForUpdate blocks on the next stream message
func waitForUpdate(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return StreamErrMsg{Err: ErrStreamClosed}
		}
		return msg
	}
}

// Init implements tea.Model
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, waitForUpdate(m.updates))
}

// Update implements tea.Model
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Help):
			m.Help.ShowAll = !m.Help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Height = msg.Height
		m.Help.Width = m.Width
		return m, nil

	case SnapshotMsg:
		m.Snapshot = msg.Snapshot
		m.Updates++
		m.LastUpdate = m.now()
		m.Err = nil
		return m, waitForUpdate(m.updates)

	case StreamErrMsg:
		m.Err = msg.Err
		return m, nil

	case spinner.TickMsg:
		// The spinner only runs until the first snapshot arrives
		if m.Snapshot != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m DashboardModel) View() string {
	var b strings.Builder

	b.WriteString(RenderHeader("easyfire dashboard", m.URL, nil, m.Width))
	b.WriteString("\n\n")

	switch {
	case m.Err != nil:
		b.WriteString(RenderErrorBox("Stream ended", m.Err, []string{
			"Check that easyfire-server is running",
			"Check the bridge URL (ws://host:port/ws)",
		}, m.Width))
		b.WriteString("\n")
	case m.Snapshot == nil:
		b.WriteString("  " + m.Spinner.View() + " Waiting for the first snapshot...\n")
	}

	if m.Snapshot != nil {
		b.WriteString(m.renderSensors())
		b.WriteString("\n")
		b.WriteString(StatusStyle.Render(m.statusLine()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.Help.View(m.Keys)))
	return b.String()
}

func (m DashboardModel) renderSensors() string {
	var temps, flags []string
	for _, s := range m.Snapshot.Sensors {
		row := "  " + SensorNameStyle.Render(s.Name) + " " + RenderValue(s)
		switch s.Kind {
		case "temperature":
			if v, ok := s.Value.(float64); ok && s.Valid {
				row += "  " + m.Bar.ViewAs(barPercent(v))
			}
			temps = append(temps, row)
		default:
			flags = append(flags, row)
		}
	}

	sections := []string{HeaderParamKeyStyle.Render("Temperatures")}
	sections = append(sections, temps...)
	if len(flags) > 0 {
		sections = append(sections, "", HeaderParamKeyStyle.Render("Control"))
		sections = append(sections, flags...)
	}
	return strings.Join(sections, "\n")
}

func (m DashboardModel) statusLine() string {
	parts := []string{fmt.Sprintf("seq %d", m.Snapshot.Seq)}
	if m.Snapshot.UpdatedAt != nil {
		parts = append(parts, "updated "+m.Snapshot.UpdatedAt.Local().Format("15:04:05"))
	}
	parts = append(parts, fmt.Sprintf("%d updates received", m.Updates))
	return strings.Join(parts, " · ")
}

// barPercent maps a temperature onto the bar scale, clamped to [0, 1]
func barPercent(celsius float64) float64 {
	p := (celsius - barMinCelsius) / (barMaxCelsius - barMinCelsius)
	return max(0, min(1, p))
}

// RunDashboard subscribes to bridgeURL and runs the dashboard until the
// user quits or ctx is cancelled.
func RunDashboard(ctx context.Context, bridgeURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan tea.Msg, 16)
	go func() {
		defer close(updates)
		err := server.Subscribe(ctx, bridgeURL, func(s *server.SnapshotMessage) {
			select {
			case updates <- SnapshotMsg{Snapshot: s}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case updates <- StreamErrMsg{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	p := tea.NewProgram(NewDashboardModel(bridgeURL, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
