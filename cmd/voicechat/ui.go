package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	voicechat "github.com/koscakluka/ema-voicechat/core"
	"github.com/koscakluka/ema-voicechat/core/agent"
	"github.com/koscakluka/ema-voicechat/core/events"
	"github.com/koscakluka/ema-voicechat/core/transcript"
)

const (
	sidebarWidth      = 33
	sidebarPadding    = 1
	sidebarOuterWidth = sidebarWidth + sidebarPadding*2

	viewportPadding = 1
)

type connectionMsg events.ConnectionState
type transcriptMsg []transcript.Entry
type errorMsg string
type connectResultMsg struct{ err error }

// sessionController is driven from commands rather than Update because its
// callbacks send messages back into the program.
type sessionController interface {
	Connect(ctx context.Context) error
	Disconnect()
	Interrupt() error
	PushToTalkStart(ctx context.Context) error
	PushToTalkStop() error
}

type model struct {
	ctx        context.Context
	controller sessionController
	agentName  string
	pushToTalk bool

	state      events.ConnectionState
	entries    []transcript.Entry
	errMessage string
	talking    bool

	termWidth  int
	termHeight int
	ready      bool

	viewport        viewport.Model
	automaticScroll bool
}

func newModel(ctx context.Context, controller sessionController, settings agent.Settings) model {
	return model{
		ctx:             ctx,
		controller:      controller,
		agentName:       settings.Name,
		pushToTalk:      settings.PushToTalk(),
		state:           events.StateDisconnected,
		automaticScroll: true,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height

		viewportHeight := m.termHeight - viewportPadding*2 - 3
		if !m.ready {
			m.viewport = viewport.New(m.viewportWidth(), viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.viewportWidth()
			m.viewport.Height = viewportHeight
		}
		m.viewport.SetContent(m.getContent())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			if m.state != events.StateDisconnected {
				return m, nil
			}
			controller, ctx := m.controller, m.ctx
			return m, func() tea.Msg {
				return connectResultMsg{err: controller.Connect(ctx)}
			}

		case "d":
			m.talking = false
			controller := m.controller
			return m, func() tea.Msg {
				controller.Disconnect()
				return nil
			}

		case " ":
			return m.togglePushToTalk(), nil

		case "i":
			if err := m.controller.Interrupt(); err != nil {
				m.errMessage = err.Error()
			}
			return m, nil

		case "ctrl+c", "q":
			controller := m.controller
			return m, func() tea.Msg {
				controller.Disconnect()
				return tea.Quit()
			}
		}

	case connectionMsg:
		m.state = events.ConnectionState(msg)
		if m.state != events.StateConnected {
			m.talking = false
		}

	case transcriptMsg:
		m.entries = msg
		m.viewport.SetContent(m.getContent())
		if m.automaticScroll {
			m.viewport.GotoBottom()
		}

	case errorMsg:
		m.errMessage = string(msg)

	case connectResultMsg:
		// The controller reports classified failures through errorMsg.
		if msg.err != nil && m.errMessage == "" &&
			!errors.Is(msg.err, voicechat.ErrConnectCancelled) {
			m.errMessage = msg.err.Error()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.automaticScroll = m.viewport.AtBottom()

	return m, cmd
}

// togglePushToTalk starts talking, cutting off the assistant, or stops and
// commits what was said.
func (m model) togglePushToTalk() model {
	if m.state != events.StateConnected {
		return m
	}

	if m.talking {
		m.talking = false
		if err := m.controller.PushToTalkStop(); err != nil {
			m.errMessage = err.Error()
		}
		return m
	}

	if err := m.controller.Interrupt(); err != nil {
		m.errMessage = err.Error()
	}
	if err := m.controller.PushToTalkStart(m.ctx); err != nil {
		m.errMessage = err.Error()
		return m
	}
	m.talking = true
	return m
}

func (m model) viewportWidth() int {
	return m.termWidth - sidebarOuterWidth - viewportPadding*2
}

func (m model) getContent() string {
	lines := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		lines = append(lines, fmt.Sprintf("%s: %s", speakerLabel(entry.Role), entry.Text))
	}
	return wordwrap.String(strings.Join(lines, "\n\n"), max(m.viewportWidth()-4, 1))
}

func speakerLabel(role transcript.Role) string {
	if role == transcript.RoleUser {
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("You")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Render("Assistant")
}

func stateColor(state events.ConnectionState) lipgloss.Color {
	switch state {
	case events.StateConnected:
		return lipgloss.Color("86")
	case events.StateConnecting:
		return lipgloss.Color("220")
	default:
		return lipgloss.Color("241")
	}
}

func (m model) View() string {
	if m.termWidth == 0 {
		return "Loading..."
	}

	mainStyle := lipgloss.NewStyle().
		Padding(1).
		Width(m.termWidth - sidebarOuterWidth).
		Height(m.termHeight - 3)

	sidebarStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(sidebarPadding).
		Width(sidebarWidth).
		Height(m.termHeight - 2)

	label := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	sidebarLines := []string{
		fmt.Sprintf("%s: %s", label.Render("Status"),
			lipgloss.NewStyle().Foreground(stateColor(m.state)).Render(string(m.state))),
		fmt.Sprintf("%s: %s", label.Render("Agent"), value.Render(m.agentName)),
		fmt.Sprintf("%s: %v", label.Render("Push-to-talk"), value.Render(fmt.Sprintf("%v", m.pushToTalk))),
		fmt.Sprintf("%s: %v", label.Render("Talking"), value.Render(fmt.Sprintf("%v", m.talking))),
		fmt.Sprintf("%s: %v", label.Render("Automatic Scroll"), value.Render(fmt.Sprintf("%v", m.automaticScroll))),
	}
	if m.errMessage != "" {
		sidebarLines = append(sidebarLines, "",
			lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")).
				Render(wordwrap.String(m.errMessage, sidebarWidth)))
	}

	mainContent := mainStyle.Render(m.viewport.View())
	sidebar := sidebarStyle.Render(strings.Join(sidebarLines, "\n"))

	footer := lipgloss.NewStyle().
		PaddingTop(1).
		Foreground(lipgloss.Color("241")).
		Render("'c' connect  'd' disconnect  'space' talk  'i' interrupt  'q' quit")

	return lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.JoinVertical(lipgloss.Left,
			mainContent,
			footer,
		),
		sidebar,
	)
}
