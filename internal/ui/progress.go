// internal/ui/progress.go

package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sshOrchestrator/internal/machine"
	"sshOrchestrator/internal/ui/messages"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type machineStatus struct {
	name    string
	phase   machine.Phase
	pending bool
	err     error
	started time.Time
	took    time.Duration
}

// StartupModel pokazuje postęp łączenia z maszynami
type StartupModel struct {
	spinner     spinner.Model
	machines    []*machineStatus
	byName      map[string]*machineStatus
	done        bool
	interrupted bool
	err         error
}

func NewStartupModel(names []string) StartupModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := StartupModel{
		spinner: s,
		byName:  make(map[string]*machineStatus, len(names)),
	}
	for _, name := range names {
		status := &machineStatus{name: name, pending: true}
		m.machines = append(m.machines, status)
		m.byName[name] = status
	}
	return m
}

func (m StartupModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m StartupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			return m, tea.Quit
		}

	case messages.StartEventMsg:
		status, ok := m.byName[msg.Machine]
		if !ok {
			status = &machineStatus{name: msg.Machine}
			m.machines = append(m.machines, status)
			m.byName[msg.Machine] = status
		}
		status.pending = false
		status.phase = msg.Phase
		status.err = msg.Err
		switch msg.Phase {
		case machine.PhaseConnecting:
			status.started = time.Now()
		case machine.PhaseConnected, machine.PhaseFailed:
			if !status.started.IsZero() {
				status.took = time.Since(status.started)
			}
		}

	case messages.AllStartedMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m StartupModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Starting machines"))
	b.WriteString("\n\n")

	for _, status := range m.machines {
		b.WriteString(m.statusLine(status))
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(ErrorStyle.Render("Some machines failed to start"))
		} else {
			b.WriteString(SuccessStyle.Render("All machines connected"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m StartupModel) statusLine(status *machineStatus) string {
	if status.pending {
		return fmt.Sprintf("  %s %s", DescriptionStyle.Render("·"), DescriptionStyle.Render(status.name))
	}

	switch status.phase {
	case machine.PhaseConnecting:
		return fmt.Sprintf("  %s %s", m.spinner.View(), status.name)
	case machine.PhaseConnected:
		return fmt.Sprintf("  %s %s %s", SuccessStyle.Render("✓"), status.name,
			DescriptionStyle.Render(status.took.Round(time.Millisecond).String()))
	case machine.PhaseSkipped:
		return fmt.Sprintf("  %s %s %s", WarningStyle.Render("-"), status.name, WarningStyle.Render("skipped"))
	default:
		line := fmt.Sprintf("  %s %s", ErrorStyle.Render("✗"), status.name)
		if status.err != nil {
			line += " " + DescriptionStyle.Render(status.err.Error())
		}
		return line
	}
}

// Err zwraca wynik uruchamiania
func (m StartupModel) Err() error {
	return m.err
}

func (m StartupModel) Interrupted() bool {
	return m.interrupted
}

// RunStartup uruchamia wszystkie maszyny katalogu, rysując postęp w out
func RunStartup(ctx context.Context, dir *machine.Directory, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var names []string
	for _, m := range dir.StartOrder() {
		names = append(names, m.Name())
	}

	program := tea.NewProgram(NewStartupModel(names), tea.WithOutput(out))

	go func() {
		err := dir.StartAllWithProgress(ctx, func(ev machine.StartEvent) {
			program.Send(messages.StartEventMsg(ev))
		})
		program.Send(messages.AllStartedMsg{Err: err})
	}()

	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("failed to run progress view: %v", err)
	}

	model := final.(StartupModel)
	if model.Interrupted() {
		return context.Canceled
	}
	return model.Err()
}
