package main

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"github.com/sarchlab/apexsim/debug"
	"github.com/sarchlab/apexsim/timing/pipeline"
)

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1)
)

type debuggerModel struct {
	machine *pipeline.Machine
	err     error
}

func (m debuggerModel) Init() tea.Cmd {
	return nil
}

func (m debuggerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "j", "enter":
			if !m.machine.Halted() && m.machine.Err() == nil {
				m.machine.Step()
			}
		}
	}
	return m, nil
}

func (m debuggerModel) View() string {
	var regBuf, stageBuf strings.Builder

	printer := debug.NewPrinter(&regBuf)
	printer.PrintRegisters(m.machine.Registers())
	printer.PrintFlags(m.machine.Flags())

	stagePrinter := debug.NewPrinter(&stageBuf)
	stagePrinter.PrintStages(m.machine)

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(regBuf.String()),
		paneStyle.Render(stageBuf.String()),
	)

	status := "space/j: step   q: quit"
	if m.machine.Halted() {
		status = "halted — " + status
	}
	if err := m.machine.Err(); err != nil {
		status = err.Error() + " — " + status
	}

	fetch, decode, execute, memory, writeback := m.machine.Latches()
	dump := spew.Sdump(struct {
		Fetch, Decode, Execute, Memory, Writeback pipeline.Latch
	}{fetch, decode, execute, memory, writeback})

	return lipgloss.JoinVertical(lipgloss.Left, top, status, "", dump)
}

func runDebugger(m *pipeline.Machine) error {
	program := tea.NewProgram(debuggerModel{machine: m})
	_, err := program.Run()
	return err
}
