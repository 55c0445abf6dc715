package tuicmder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/stream"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

var (
	tuiTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	tuiMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tuiDividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	tuiUserStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true)
	tuiAsstStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	tuiErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	tuiWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// chromeLines is the height taken by the header, divider, status and input.
const chromeLines = 5

type (
	// refreshMsg asks for a redraw after tokens arrived.
	refreshMsg struct{}

	turnDoneMsg struct {
		result chat.Result
	}

	switchedMsg struct {
		transcript *conversation.Transcript
		err        error
	}

	cancelledMsg struct{}
)

// newConversationFunc creates a conversation on the backend.
type newConversationFunc func(ctx context.Context) (*conversation.Transcript, error)

type tuiModel struct {
	ctx    context.Context
	svc    *chat.Service
	create newConversationFunc

	// remember persists the conversation the user switched to.
	remember func(conversationID string) error

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	turn      *chat.Turn
	refresh   chan struct{}
	status    string
	statusErr bool

	// rendered caches glamour output of finalized messages by ID.
	rendered map[string]string

	width  int
	height int
}

func newTUIModel(ctx context.Context, svc *chat.Service, create newConversationFunc) tuiModel {
	input := textinput.New()
	input.Placeholder = "Send a message"
	input.Prompt = "› "
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{Frames: cliui.SpinnerFrames, FPS: time.Second / 10}
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	m := tuiModel{
		ctx:      ctx,
		svc:      svc,
		create:   create,
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		refresh:  make(chan struct{}, 1),
		rendered: make(map[string]string),
		width:    80,
		height:   20 + chromeLines,
	}
	m.syncViewport()
	return m
}

func (m tuiModel) Init() bubbletea.Cmd {
	return textinput.Blink
}

func (m tuiModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeLines, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.rendered = make(map[string]string)
		m.syncViewport()
		return m, nil

	case bubbletea.KeyMsg:
		return m.handleKey(msg)

	case refreshMsg:
		m.syncViewport()
		if m.turn == nil {
			return m, nil
		}
		return m, waitForTurn(m.turn, m.refresh)

	case turnDoneMsg:
		m.turn = nil
		m.setOutcome(msg.result)
		m.syncViewport()
		cmd := m.input.Focus()
		return m, cmd

	case cancelledMsg:
		return m, nil

	case switchedMsg:
		if msg.err != nil {
			m.setError(backend.Describe(msg.err))
			return m, nil
		}
		m.svc.Switch(msg.transcript)
		if m.remember != nil {
			if err := m.remember(msg.transcript.ConversationID()); err != nil {
				m.setError(err.Error())
			}
		}
		m.setStatus("New conversation " + utils.ShortID(msg.transcript.ConversationID()))
		m.syncViewport()
		return m, nil

	case spinner.TickMsg:
		if m.turn == nil {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.syncViewport()
		return m, cmd
	}

	var cmd bubbletea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m tuiModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg.Type {
	case bubbletea.KeyCtrlC:
		m.svc.Close()
		return m, bubbletea.Quit

	case bubbletea.KeyEsc:
		if m.turn == nil {
			return m, nil
		}
		return m, cancelTurn(m.svc)

	case bubbletea.KeyCtrlN:
		if m.turn != nil || m.create == nil {
			return m, nil
		}
		return m, newConversation(m.ctx, m.create)

	case bubbletea.KeyPgUp, bubbletea.KeyPgDown, bubbletea.KeyUp, bubbletea.KeyDown:
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case bubbletea.KeyEnter:
		if m.turn != nil {
			return m, nil
		}
		return m.submit()
	}

	// The input is disabled while a reply streams.
	if m.turn != nil {
		return m, nil
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) submit() (bubbletea.Model, bubbletea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	refresh := m.refresh
	turn, err := m.svc.Submit(m.ctx, text, func(string) {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		m.setError(err.Error())
		return m, nil
	}

	m.turn = turn
	m.input.SetValue("")
	m.input.Blur()
	m.setStatus("")
	m.syncViewport()

	return m, bubbletea.Batch(waitForTurn(turn, m.refresh), m.spinner.Tick)
}

func (m *tuiModel) setOutcome(res chat.Result) {
	switch res.Outcome {
	case chat.OutcomeCompleted:
		m.setStatus("")
	case chat.OutcomeCancelled:
		m.setStatus("reply cancelled")
	case chat.OutcomeTruncated:
		m.setStatus("reply ended before the server confirmed it; discarded")
	case chat.OutcomeFailed:
		var perr *stream.ProtocolError
		if errors.As(res.Err, &perr) {
			m.setError("server error: " + perr.Payload)
			return
		}
		m.setError(backend.Describe(res.Err))
	}
}

func (m *tuiModel) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *tuiModel) setError(s string) {
	m.status = s
	m.statusErr = true
}

func (m *tuiModel) syncViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom || m.turn != nil {
		m.viewport.GotoBottom()
	}
}

func (m *tuiModel) renderTranscript() string {
	msgs := m.svc.Transcript().Messages()
	if len(msgs) == 0 {
		return tuiMutedStyle.Render("No messages yet. Type below and press Enter.")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case msg.Role == conversation.RoleUser:
			b.WriteString(tuiUserStyle.Render("you"))
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n")

		case msg.Pending:
			b.WriteString(tuiAsstStyle.Render("assistant"))
			b.WriteString(" ")
			b.WriteString(m.spinner.View())
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n")

		default:
			b.WriteString(tuiAsstStyle.Render("assistant"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg))
		}
	}
	return b.String()
}

func (m *tuiModel) renderMarkdown(msg conversation.Message) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := cliui.RenderMarkdownWidth(msg.Content, max(m.width-2, 20))
	if err != nil {
		out = msg.Content + "\n"
	}
	m.rendered[msg.ID] = out
	return out
}

func (m tuiModel) View() string {
	header := renderHeaderLine(m.width,
		tuiTitleStyle.Render("chatstream"),
		tuiMutedStyle.Render(utils.ShortID(m.svc.Transcript().ConversationID())),
	)

	return strings.Join([]string{
		header,
		m.viewport.View(),
		renderRule(m.width),
		m.viewStatus(),
		m.input.View(),
	}, "\n")
}

func (m tuiModel) viewStatus() string {
	switch {
	case m.status != "" && m.statusErr:
		return tuiErrorStyle.Render("✗ " + m.status)
	case m.status != "":
		return tuiWarnStyle.Render(m.status)
	case m.turn != nil:
		return tuiMutedStyle.Render("streaming... esc to stop")
	default:
		return tuiMutedStyle.Render("enter send • ctrl+n new conversation • ctrl+c quit")
	}
}

// waitForTurn delivers either a redraw request or the turn's result.
func waitForTurn(turn *chat.Turn, refresh <-chan struct{}) bubbletea.Cmd {
	return func() bubbletea.Msg {
		select {
		case <-refresh:
			return refreshMsg{}
		case <-turn.Done():
			return turnDoneMsg{result: turn.Wait()}
		}
	}
}

func cancelTurn(svc *chat.Service) bubbletea.Cmd {
	return func() bubbletea.Msg {
		svc.Cancel()
		return cancelledMsg{}
	}
}

func newConversation(ctx context.Context, create newConversationFunc) bubbletea.Cmd {
	return func() bubbletea.Msg {
		tr, err := create(ctx)
		return switchedMsg{transcript: tr, err: err}
	}
}

func renderHeaderLine(width int, left, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func renderRule(width int) string {
	if width <= 0 {
		width = 1
	}
	return tuiDividerStyle.Render(strings.Repeat("─", width))
}
