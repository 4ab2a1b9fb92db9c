package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"social-chat-core/chat"
	"social-chat-core/client"
	"social-chat-core/models"
	"social-chat-core/transport"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	senderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Faint(true)
	typingStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	timeStyle    = lipgloss.NewStyle().Faint(true)
)

// Session hooks run on the chat core's goroutines; they hand updates to the
// UI through this channel and waitForEvent turns each one into a tea.Msg.
type timelineMsg []models.Message

type typingMsg []string

type sendFailedMsg struct {
	text string
	err  error
}

type historyFailedMsg struct {
	err error
}

func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

type chatModel struct {
	session      *chat.Session
	conversation string
	self         string

	events chan tea.Msg

	viewport viewport.Model
	input    textinput.Model
	ready    bool

	messages []models.Message
	typing   []string
	status   string
}

func newChatModel(session *chat.Session, conversation, self string, events chan tea.Msg) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Say something..."
	ti.Focus()
	ti.CharLimit = 2000

	return &chatModel{
		session:      session,
		conversation: conversation,
		self:         self,
		events:       events,
		input:        ti,
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Header, typing line, input and status each take a row.
		vpHeight := msg.Height - 4
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.status = ""
			m.session.Send(text)
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.session.SetInput(m.input.Value())
		return m, cmd

	case timelineMsg:
		m.messages = msg
		m.refresh()
		m.viewport.GotoBottom()
		return m, waitForEvent(m.events)

	case typingMsg:
		m.typing = msg
		return m, waitForEvent(m.events)

	case sendFailedMsg:
		m.status = fmt.Sprintf("send failed: %v", msg.err)
		// Put the text back so it can be edited and resent.
		m.input.SetValue(msg.text)
		m.input.CursorEnd()
		return m, waitForEvent(m.events)

	case historyFailedMsg:
		m.status = fmt.Sprintf("history unavailable: %v", msg.err)
		return m, waitForEvent(m.events)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
}

func (m *chatModel) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.messages {
		name := msg.SenderID
		if msg.Sender != nil {
			name = msg.Sender.DisplayName()
		}
		line := fmt.Sprintf("%s %s %s",
			timeStyle.Render(msg.Timestamp.Local().Format("15:04")),
			senderStyle.Render(name+":"),
			msg.Content)
		if msg.Pending {
			line = pendingStyle.Render(line + " (sending...)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *chatModel) typingLine() string {
	switch len(m.typing) {
	case 0:
		return ""
	case 1:
		return typingStyle.Render(m.typing[0] + " is typing...")
	default:
		return typingStyle.Render(strings.Join(m.typing, ", ") + " are typing...")
	}
}

func (m *chatModel) View() string {
	if !m.ready {
		return "Connecting..."
	}
	header := headerStyle.Render(fmt.Sprintf(" %s | signed in as %s ", m.conversation, m.self))
	status := ""
	if m.status != "" {
		status = statusStyle.Render(m.status)
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		m.typingLine(),
		m.input.View(),
		status)
}

func main() {
	server := flag.String("server", "http://localhost:8080", "chat server base URL")
	username := flag.String("user", "alice", "username to sign in with")
	password := flag.String("pass", "password", "password to sign in with")
	room := flag.String("room", "community:general", "conversation to join")
	flag.Parse()

	backend := client.New(*server, "")
	if _, err := backend.Login(context.Background(), *username, *password); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}

	ts := transport.NewSession()
	if err := ts.Connect(*server, backend.Token()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "connect failed:", err)
		os.Exit(1)
	}
	defer ts.Close()

	events := make(chan tea.Msg, 64)
	push := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}

	session := chat.NewSession(chat.Options{
		Conversation: models.ParseConversation(*room),
		Self:         *username,
		Backend:      backend,
		Transport:    ts,
		Hooks: chat.Hooks{
			OnTimeline: func(msgs []models.Message) { push(timelineMsg(msgs)) },
			OnTyping:   func(users []string) { push(typingMsg(users)) },
			OnSendFailed: func(text string, err error) {
				push(sendFailedMsg{text: text, err: err})
			},
			OnHistoryFailed: func(err error) { push(historyFailedMsg{err: err}) },
		},
	})
	session.Open(nil)
	defer session.Close()

	p := tea.NewProgram(newChatModel(session, *room, *username, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
