package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"relaymic/internal/domain"
	"relaymic/internal/textctx"

	tea "github.com/charmbracelet/bubbletea"
)

// Dictator is the requester action behind the dictate key.
type Dictator interface {
	DictateButtonTapped(ctx context.Context) error
}

// StatusMsg carries a requester status update into the program.
type StatusMsg struct {
	Status domain.RequesterStatus
}

// TapResultMsg reports the outcome of a dictate key press.
type TapResultMsg struct {
	Err error
}

// ClearTransientErrorMsg clears a transient error after a delay.
type ClearTransientErrorMsg struct{}

// Model is the keyboard-style requester UI: a document and a dictate key.
type Model struct {
	ctx      context.Context
	dictator Dictator
	document *textctx.Buffer

	status domain.RequesterStatus

	width  int
	height int

	errorMessage string
}

func New(ctx context.Context, dictator Dictator, document *textctx.Buffer) Model {
	return Model{
		ctx:      ctx,
		dictator: dictator,
		document: document,
		status:   domain.RequesterStatus{Phase: domain.PhaseIdle, Message: "Tap to dictate"},
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func tapCmd(ctx context.Context, d Dictator) tea.Cmd {
	return func() tea.Msg {
		return TapResultMsg{Err: d.DictateButtonTapped(ctx)}
	}
}

func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case TapResultMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			return m, clearTransientErrorCmd()
		}
		return m, nil

	case ClearTransientErrorMsg:
		m.errorMessage = ""
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return m, tea.Quit
	case "tab", "ctrl+t":
		return m, tapCmd(m.ctx, m.dictator)
	case "backspace":
		m.document.Backspace()
		return m, nil
	case "enter":
		_ = m.document.Insert(m.ctx, "\n")
		return m, nil
	}
	switch msg.Type {
	case tea.KeySpace:
		_ = m.document.Insert(m.ctx, " ")
	case tea.KeyRunes:
		_ = m.document.Insert(m.ctx, string(msg.Runes))
	}
	return m, nil
}

func (m Model) View() string {
	var sections []string
	sections = append(sections, titleStyle.Render("relaymic")+"  "+m.renderStatus())

	doc := m.document.String()
	if doc == "" {
		doc = helpStyle.Render("(empty)")
	}
	box := documentStyle
	if m.width > 4 {
		box = box.Width(m.width - 2)
	}
	sections = append(sections, box.Render(doc))

	if m.errorMessage != "" {
		sections = append(sections, errorStyle.Render("! "+m.errorMessage))
	}
	sections = append(sections, helpStyle.Render("tab: dictate  esc: quit"))
	return strings.Join(sections, "\n")
}

func (m Model) renderStatus() string {
	style := phaseStyle(m.status.Phase)
	dot := style.Render("●")
	return lipgloss.JoinHorizontal(lipgloss.Top, dot, " ", style.Render(m.status.Message))
}

func phaseStyle(phase domain.Phase) lipgloss.Style {
	switch phase {
	case domain.PhaseRecording:
		return listeningStyle
	case domain.PhaseStartRequested, domain.PhaseTranscribing:
		return busyStyle
	case domain.PhaseComplete:
		return doneStyle
	case domain.PhaseError:
		return errorStyle
	default:
		return idleStyle
	}
}
