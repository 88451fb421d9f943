// Package tui is the terminal render driver: a bubbletea program that
// refreshes the live section every tick and draws the split board.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speedy/internal/splits"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Faint(true)
	aheadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	behindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	goldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true)
	currentRow  = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

type retryMsg struct{ err error }

// Model is the bubbletea model. Advance keys go through the event loop so
// they are ordered with signal and HTTP triggers.
type Model struct {
	timer *splits.Timer
	loop  *splits.Loop
	tick  time.Duration
	board splits.Board
	err   error
}

// New returns a Model drawing timer every tick.
func New(timer *splits.Timer, loop *splits.Loop, tick time.Duration) Model {
	return Model{timer: timer, loop: loop, tick: tick, board: timer.Board()}
}

// Run starts the program and blocks until the user quits or ctx is done.
// With altScreen the board takes over the terminal and leaves no scrollback.
func Run(ctx context.Context, m Model, altScreen bool) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	_, err := tea.NewProgram(m, opts...).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tickCmd(m.tick)
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(at time.Time) tea.Msg {
		return tickMsg(at)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.timer.Refresh()
		m.board = m.timer.Board()
		m.err = m.timer.Snapshot().PersistErr
		return m, tickCmd(m.tick)

	case retryMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "enter":
			m.loop.Trigger()
		case "r":
			m.timer.Reset()
		case "s":
			timer := m.timer
			return m, func() tea.Msg {
				return retryMsg{err: timer.Retry(context.Background())}
			}
		case "d":
			if err := m.timer.Discard(); err == nil {
				m.err = nil
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	return Render(m.board, m.err)
}

// Render draws a board. Widths are applied before styling so colour codes
// do not break alignment.
func Render(b splits.Board, persistErr error) string {
	nameWidth := len("section")
	for _, r := range b.Rows {
		nameWidth = max(nameWidth, len(r.Name))
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(" speedy: "+b.Game) + "\n")
	sb.WriteString(headerStyle.Render(fmt.Sprintf(" %-*s | %-6s | %-16s | %-16s | %-6s",
		nameWidth, "section", "best", "current", "section", "best possible")) + "\n")
	sb.WriteString(headerStyle.Render(" "+strings.Repeat("-", nameWidth+66)) + "\n")

	for i, r := range b.Rows {
		name := fmt.Sprintf(" %-*s", nameWidth, r.Name)
		if b.Status == splits.Running && i == b.Current {
			name = currentRow.Render(name)
		}
		fmt.Fprintf(&sb, "%s | %6s | %6s %s | %6s %s | %6s\n",
			name,
			r.PB,
			r.Total, deltaStyle(r, r.TotalDeltaMS).Render(fmt.Sprintf("%-9s", r.TotalDelta)),
			r.Section, deltaStyle(r, r.SectionDeltaMS).Render(fmt.Sprintf("%-9s", r.SectionDelta)),
			r.Projected,
		)
	}

	sb.WriteString("\n" + statusLine(b) + "\n")
	if persistErr != nil {
		sb.WriteString(errorStyle.Render(" records not saved: "+persistErr.Error()) + "\n")
		sb.WriteString(helpStyle.Render(" s: retry save  d: discard run") + "\n")
	}
	sb.WriteString(helpStyle.Render(" space: start/split  r: reset  q: quit") + "\n")
	return sb.String()
}

func statusLine(b splits.Board) string {
	switch b.Status {
	case splits.Running:
		line := fmt.Sprintf(" running, section %d of %d", b.Current+1, len(b.Rows))
		if b.LossSoFar > 0 {
			line += ", lost " + splits.FormatTime(b.LossSoFar) + " to best"
		}
		return line
	case splits.Finished:
		return " finished, saving records"
	default:
		return " idle"
	}
}

func deltaStyle(r splits.Row, delta *int64) lipgloss.Style {
	switch {
	case r.Indicator == splits.AheadOfBest:
		return goldStyle
	case delta == nil:
		return lipgloss.NewStyle()
	case *delta < 0:
		return aheadStyle
	case *delta > 0:
		return behindStyle
	default:
		return lipgloss.NewStyle()
	}
}
