// Package tui is the terminal frontend of the worker panel. It renders the
// view models the panel builds and maps keystrokes onto panel intents. All
// fleet state lives behind the panel and coordinator; the model here is
// presentation state only.
package tui

import (
	"context"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"farmctl/internal/config"
	"farmctl/internal/coordinator"
	"farmctl/internal/panel"
	"farmctl/pkg/logging"
)

// section identifies which panel currently has focus.
type section int

const (
	sectionWorkers section = iota
	sectionSettings
	sectionFarm
	sectionCount
)

// Messages delivered into the bubbletea loop.
type (
	panelMsg      struct{ vm panel.ViewModel }
	fleetEventMsg struct{ event coordinator.Event }
	logMsg        struct{ entry logging.LogEntry }
	claimDoneMsg  struct{ err error }
	actionDoneMsg struct {
		label string
		err   error
	}
)

// Sink implements panel.Renderer by forwarding view models into the running
// program. It is handed to the panel before the program exists, so the
// program reference is attached later.
type Sink struct {
	mu      sync.Mutex
	program *tea.Program
}

// RenderPanel delivers a freshly built view model to the UI.
func (s *Sink) RenderPanel(vm panel.ViewModel) {
	s.mu.Lock()
	p := s.program
	s.mu.Unlock()
	if p != nil {
		p.Send(panelMsg{vm: vm})
	}
}

func (s *Sink) attach(p *tea.Program) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

// Model is the bubbletea model of the panel UI.
type Model struct {
	panel *panel.Panel
	coord *coordinator.Coordinator
	store *config.Store
	keys  KeyMap

	vm      panel.ViewModel
	events  <-chan coordinator.Event
	logCh   <-chan logging.LogEntry
	version string

	focus    section
	cursor   [sectionCount]int
	spinner  spinner.Model
	count    textinput.Model
	claiming bool
	showLog  bool
	status   string
	statusOK bool
	logLines []string

	width  int
	height int
}

// NewModel builds the initial UI model.
func NewModel(p *panel.Panel, coord *coordinator.Coordinator, store *config.Store, logCh <-chan logging.LogEntry, version string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0000CC", Dark: "#58A6FF"})

	count := textinput.New()
	count.Placeholder = "4"
	count.CharLimit = 3
	count.Width = 4

	return Model{
		panel:   p,
		coord:   coord,
		store:   store,
		keys:    DefaultKeyMap(),
		events:  coord.Subscribe(),
		logCh:   logCh,
		version: version,
		spinner: sp,
		count:   count,
		showLog: true,
	}
}

// Init starts the event pumps and requests the first render.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.refreshCmd(),
		waitForEvent(m.events),
		waitForLog(m.logCh),
	)
}

// refreshCmd asks the panel for a rebuild. The resulting view model arrives
// asynchronously through the Sink; an in-flight render drops the request.
func (m Model) refreshCmd() tea.Cmd {
	p := m.panel
	return func() tea.Msg {
		p.Render(context.Background())
		return nil
	}
}

func waitForEvent(ch <-chan coordinator.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return fleetEventMsg{event: event}
	}
}

func waitForLog(ch <-chan logging.LogEntry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg{entry: entry}
	}
}

// Run drives the UI until quit or context cancellation.
func Run(ctx context.Context, sink *Sink, m Model) error {
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	sink.attach(program)
	_, err := program.Run()
	return err
}
