package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"farmctl/internal/fleet"
	"farmctl/internal/panel"
)

// View renders the whole panel.
func (m Model) View() string {
	if m.width == 0 {
		return "Starting..."
	}

	var b strings.Builder

	header := fmt.Sprintf("farmctl %s", m.version)
	if m.vm.MasterAddr != "" {
		header += dimStyle.Render("  master " + m.vm.MasterAddr)
	}
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	panelWidth := m.width - 4
	if panelWidth < 20 {
		panelWidth = 20
	}

	b.WriteString(m.renderWorkers(panelWidth))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSettings(panelWidth/2),
		m.renderFarm(panelWidth-panelWidth/2),
	))
	b.WriteString("\n")

	if m.showLog && m.height >= minHeightForLogView {
		b.WriteString(m.renderLog(panelWidth))
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return appStyle.Render(b.String())
}

func (m Model) renderWorkers(width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Workers"))

	for i, row := range m.vm.Workers {
		var line string
		switch row.Kind {
		case panel.RowPlaceholder:
			line = dimStyle.Render("  " + row.Name)
		case panel.RowAddWorker:
			line = dimStyle.Render("  + " + row.Name)
		default:
			icon := statusIcon(row.Status)
			name := row.Name
			if name == "" {
				name = row.ID
			}
			name = runewidth.Truncate(name, 30, "…")
			enabled := " "
			if row.Enabled {
				enabled = "●"
			}
			line = fmt.Sprintf("  %s %s %-32s %-22s %s",
				enabled, icon, name, row.Address, dimStyle.Render(string(row.Source)))
		}
		cursor := " "
		if m.focus == sectionWorkers && i == m.cursor[sectionWorkers] {
			cursor = selectedRowStyle.Render("▸")
		}
		lines = append(lines, cursor+line)
	}

	style := panelStyle
	if m.focus == sectionWorkers {
		style = focusedPanelStyle
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderSettings(width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Settings"))

	for i, row := range m.vm.Settings {
		mark := "[ ]"
		if row.Value {
			mark = "[x]"
		}
		line := fmt.Sprintf(" %s %s", mark, row.Label)
		cursor := " "
		if m.focus == sectionSettings && i == m.cursor[sectionSettings] {
			cursor = selectedRowStyle.Render("▸")
		}
		lines = append(lines, cursor+line)
	}

	style := panelStyle
	if m.focus == sectionSettings {
		style = focusedPanelStyle
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderFarm(width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Farm"))

	farm := m.vm.Farm
	avail := errorStyle.Render("unavailable")
	if farm.Available {
		avail = okStyle.Render("available")
	}
	lines = append(lines, fmt.Sprintf("  Backend: %s (%s)", farm.Backend, avail))
	lines = append(lines, fmt.Sprintf("  Pool: %s  Group: %s  Priority: %d",
		orNone(farm.Pool), orNone(farm.Group), farm.Priority))
	lines = append(lines, fmt.Sprintf("  Active jobs: %d", farm.ActiveJobs))

	countLine := "  Count: " + m.count.View()
	if m.claiming {
		countLine += "  " + m.spinner.View() + " claiming"
	}
	lines = append(lines, countLine)

	style := panelStyle
	if m.focus == sectionFarm {
		style = focusedPanelStyle
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderLog(width int) string {
	visible := m.height - minHeightForLogView + 4
	if visible < 3 {
		visible = 3
	}
	start := len(m.logLines) - visible
	if start < 0 {
		start = 0
	}

	var lines []string
	lines = append(lines, titleStyle.Render("Activity"))
	for _, line := range m.logLines[start:] {
		lines = append(lines, dimStyle.Render(runewidth.Truncate(line, width-4, "…")))
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatusLine() string {
	if m.status == "" {
		return ""
	}
	if m.statusOK {
		return okStyle.Render(" " + m.status)
	}
	return errorStyle.Render(" " + m.status)
}

func (m Model) renderHelp() string {
	keys := []string{
		m.keys.Tab.Help().Key + " " + m.keys.Tab.Help().Desc,
		m.keys.Claim.Help().Key + " " + m.keys.Claim.Help().Desc,
		m.keys.Release.Help().Key + " " + m.keys.Release.Help().Desc,
		m.keys.ClearVRAM.Help().Key + " " + m.keys.ClearVRAM.Help().Desc,
		m.keys.Interrupt.Help().Key + " " + m.keys.Interrupt.Help().Desc,
		m.keys.CopyAddr.Help().Key + " " + m.keys.CopyAddr.Help().Desc,
		m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc,
	}
	return helpStyle.Render(" " + strings.Join(keys, " • "))
}

func statusIcon(status fleet.WorkerStatus) string {
	switch status {
	case fleet.StatusOnline:
		return okStyle.Render(IconOnline)
	case fleet.StatusOffline:
		return errorStyle.Render(IconOffline)
	case fleet.StatusBusy:
		return IconBusy
	case fleet.StatusChecking:
		return IconChecking
	default:
		return dimStyle.Render(IconUnknown)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
