package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"farmctl/internal/coordinator"
	"farmctl/internal/panel"
)

// Update routes messages to the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case panelMsg:
		m.vm = msg.vm
		m.clampCursors()
		return m, nil

	case fleetEventMsg:
		return m.handleFleetEvent(msg.event)

	case logMsg:
		line := fmt.Sprintf("%s [%s] %s: %s",
			msg.entry.Timestamp.Format("15:04:05"),
			msg.entry.Level.String(),
			msg.entry.Subsystem,
			msg.entry.Message,
		)
		m.logLines = append(m.logLines, line)
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
		return m, waitForLog(m.logCh)

	case claimDoneMsg:
		m.claiming = false
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Claim failed: %v", msg.err), false)
			return m, nil
		}
		m.setStatus("Claim submitted", true)
		return m, m.refreshCmd()

	case actionDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.label, msg.err), false)
			return m, nil
		}
		m.setStatus(msg.label+" done", true)
		return m, m.refreshCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While the count field has focus, keystrokes feed the input; only the
	// navigation and action keys break out.
	if m.count.Focused() {
		switch {
		case key.Matches(msg, m.keys.Quit) && msg.String() == "ctrl+c":
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tab), msg.Type == tea.KeyEsc:
			m.count.Blur()
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			m.count.Blur()
			return m.startClaim()
		default:
			var cmd tea.Cmd
			m.count, cmd = m.count.Update(msg)
			return m, cmd
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor[m.focus] > 0 {
			m.cursor[m.focus]--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor[m.focus] < m.sectionLen(m.focus)-1 {
			m.cursor[m.focus]++
		}
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		m.focus = (m.focus + 1) % sectionCount
		if m.focus == sectionFarm {
			m.count.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		return m.handleEnter()

	case key.Matches(msg, m.keys.Claim):
		return m.startClaim()

	case key.Matches(msg, m.keys.Release):
		return m.startAction("Release", func(ctx context.Context) error {
			return m.panel.ReleaseAll(ctx)
		})

	case key.Matches(msg, m.keys.ClearVRAM):
		return m.startAction("Clear VRAM", func(ctx context.Context) error {
			m.panel.ClearVRAM(ctx)
			return nil
		})

	case key.Matches(msg, m.keys.Interrupt):
		return m.startAction("Interrupt", func(ctx context.Context) error {
			m.panel.Interrupt(ctx)
			return nil
		})

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.CopyAddr):
		if m.vm.MasterAddr == "" {
			m.setStatus("No master address to copy", false)
			return m, nil
		}
		if err := clipboard.WriteAll(m.vm.MasterAddr); err != nil {
			m.setStatus(fmt.Sprintf("Clipboard copy failed: %v", err), false)
			return m, nil
		}
		m.setStatus("Master address copied to clipboard", true)
		return m, nil

	case key.Matches(msg, m.keys.ToggleLog):
		m.showLog = !m.showLog
		return m, nil
	}

	return m, nil
}

// handleEnter applies the focused row's primary action.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focus {
	case sectionWorkers:
		row := m.selectedWorkerRow()
		if row == nil || row.Kind != panel.RowWorker {
			return m, nil
		}
		if err := m.store.SetWorkerEnabled(row.ID, !row.Enabled); err != nil {
			m.setStatus(fmt.Sprintf("Toggle worker failed: %v", err), false)
			return m, nil
		}
		return m, m.refreshCmd()

	case sectionSettings:
		if m.cursor[sectionSettings] >= len(m.vm.Settings) {
			return m, nil
		}
		row := m.vm.Settings[m.cursor[sectionSettings]]
		if err := m.panel.ToggleSetting(row.Key, !row.Value); err != nil {
			m.setStatus(fmt.Sprintf("Toggle failed: %v", err), false)
			return m, nil
		}
		return m, m.refreshCmd()

	case sectionFarm:
		m.count.Focus()
		return m, nil
	}
	return m, nil
}

func (m Model) startClaim() (tea.Model, tea.Cmd) {
	if m.claiming {
		m.setStatus("A claim is already in flight", false)
		return m, nil
	}
	m.claiming = true
	m.setStatus("Claiming workers...", true)

	countField := m.count.Value()
	p := m.panel
	farmView := m.vm.Farm
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		err := p.Claim(ctx, countField, farmView.Priority, farmView.Pool, farmView.Group)
		return claimDoneMsg{err: err}
	}
}

func (m Model) startAction(label string, fn func(context.Context) error) (tea.Model, tea.Cmd) {
	m.setStatus(label+"...", true)
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return actionDoneMsg{label: label, err: fn(ctx)}
	}
}

func (m Model) handleFleetEvent(event coordinator.Event) (tea.Model, tea.Cmd) {
	switch event.Kind {
	case coordinator.EventClaimed:
		m.setStatus(fmt.Sprintf("Farm job %s claimed (%d workers)", event.JobID, event.Count), true)
	case coordinator.EventClaimFailed:
		m.setStatus(fmt.Sprintf("Claim failed: %v", event.Err), false)
	case coordinator.EventReleased:
		m.setStatus(fmt.Sprintf("Released %d farm job(s)", event.Count), true)
	}
	return m, tea.Batch(waitForEvent(m.events), m.refreshCmd())
}

func (m *Model) setStatus(text string, ok bool) {
	m.status = text
	m.statusOK = ok
}

func (m *Model) clampCursors() {
	for s := section(0); s < sectionCount; s++ {
		if max := m.sectionLen(s); m.cursor[s] >= max && max > 0 {
			m.cursor[s] = max - 1
		}
	}
}

func (m Model) sectionLen(s section) int {
	switch s {
	case sectionWorkers:
		return len(m.vm.Workers)
	case sectionSettings:
		return len(m.vm.Settings)
	default:
		return 1
	}
}

func (m Model) selectedWorkerRow() *panel.WorkerRow {
	i := m.cursor[sectionWorkers]
	if i < 0 || i >= len(m.vm.Workers) {
		return nil
	}
	return &m.vm.Workers[i]
}
