package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gosuda/chatsync/internal/presence"
	"github.com/gosuda/chatsync/internal/reconcile"
)

const (
	actionTimeout = 15 * time.Second
	sidebarWidth  = 24
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	selfColor    = lipgloss.Color("#10B981")
	mutedColor   = lipgloss.Color("#9CA3AF")
	errorColor   = lipgloss.Color("#EF4444")
	unreadColor  = lipgloss.Color("#F59E0B")

	sidebarStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primaryColor).Padding(0, 1)
	chatStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primaryColor)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	activeStyle  = lipgloss.NewStyle().Foreground(selfColor).Bold(true)
	unreadStyle  = lipgloss.NewStyle().Foreground(unreadColor).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	systemStyle  = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	selfStyle    = lipgloss.NewStyle().Foreground(selfColor).Bold(true)
	authorStyle  = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(errorColor).Padding(0, 1)
)

// actions is what the view may ask of the reconciler. Every call runs in a
// tea.Cmd, never inside Update, because the reconciler renders through
// Program.Send.
type actions interface {
	JoinRoom(ctx context.Context, name string) error
	CreateRoom(ctx context.Context, name string) error
	DeleteRoom(name string) error
	Send(text string) (string, error)
	Edit(id, text string) error
	Delete(id string) error
	Keystroke()
	SetFocused(focused bool)
}

type renderMsg struct{ in reconcile.Instruction }

type resultMsg struct {
	info string
	err  error
}

type model struct {
	self    string
	actions actions
	connect func(context.Context) error

	rooms     []reconcile.RoomView
	active    string
	users     []presence.User
	messages  []reconcile.MessageView
	caption   string
	connected bool
	connErr   error
	status    string
	statusErr bool

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
}

func newModel(self string, a actions) model {
	in := textinput.New()
	in.Placeholder = "message, or /join <room>"
	in.CharLimit = 5000
	in.Focus()
	return model{
		self:     self,
		actions:  a,
		input:    in,
		viewport: viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.connectCmd())
}

func (m model) connectCmd() tea.Cmd {
	connect := m.connect
	if connect == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := connect(ctx); err != nil {
			return resultMsg{err: fmt.Errorf("connect: %w", err)}
		}
		return resultMsg{info: "connected as " + m.self}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil
	case tea.FocusMsg:
		return m, m.do(func() error { m.actions.SetFocused(true); return nil })
	case tea.BlurMsg:
		return m, m.do(func() error { m.actions.SetFocused(false); return nil })
	case renderMsg:
		m.apply(msg.in)
		return m, nil
	case resultMsg:
		switch {
		case msg.err != nil:
			m.status, m.statusErr = msg.err.Error(), true
		case msg.info != "":
			m.status, m.statusErr = msg.info, false
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m, m.submit(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		// any edit of a message keeps the typing signal alive
		if !strings.HasPrefix(m.input.Value(), "/") {
			return m, tea.Batch(cmd, m.do(func() error { m.actions.Keystroke(); return nil }))
		}
		return m, cmd
	}
	return m, nil
}

// do runs fn off the update loop and reports its error.
func (m model) do(fn func() error) tea.Cmd {
	if m.actions == nil {
		return nil
	}
	return func() tea.Msg {
		if err := fn(); err != nil {
			return resultMsg{err: err}
		}
		return nil
	}
}

func (m model) submit(line string) tea.Cmd {
	c, err := parseInput(line)
	if err != nil {
		return func() tea.Msg { return resultMsg{err: err} }
	}
	a := m.actions
	withTimeout := func(fn func(ctx context.Context) error) func() error {
		return func() error {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			return fn(ctx)
		}
	}
	switch c.kind {
	case cmdNone:
		return nil
	case cmdQuit:
		return tea.Quit
	case cmdConnect:
		return m.connectCmd()
	case cmdSend:
		return m.do(func() error { _, err := a.Send(c.text); return err })
	case cmdJoin:
		return m.do(withTimeout(func(ctx context.Context) error { return a.JoinRoom(ctx, c.arg) }))
	case cmdCreate:
		return m.do(withTimeout(func(ctx context.Context) error { return a.CreateRoom(ctx, c.arg) }))
	case cmdDelete:
		return m.do(func() error { return a.DeleteRoom(c.arg) })
	case cmdEdit:
		return m.do(func() error { return a.Edit(c.arg, c.text) })
	case cmdRemove:
		return m.do(func() error { return a.Delete(c.arg) })
	}
	return nil
}

func (m *model) apply(in reconcile.Instruction) {
	switch in := in.(type) {
	case reconcile.RoomsChanged:
		m.rooms = in.Rooms
	case reconcile.ActiveRoomChanged:
		m.active = in.Room
	case reconcile.PresenceChanged:
		m.users = in.Users
	case reconcile.LogReset:
		m.messages = append(m.messages[:0:0], in.Messages...)
	case reconcile.MessageAppended:
		m.messages = append(m.messages, in.Message)
	case reconcile.MessageEdited:
		for i := range m.messages {
			if m.messages[i].ID == in.Message.ID {
				m.messages[i] = in.Message
			}
		}
	case reconcile.MessageDeleted:
		for i := range m.messages {
			if m.messages[i].ID == in.ID {
				m.messages = append(m.messages[:i], m.messages[i+1:]...)
				break
			}
		}
	case reconcile.TypingCaption:
		m.caption = in.Text
	case reconcile.ConnectionChanged:
		m.connected, m.connErr = in.Connected, in.Err
	case reconcile.Notify:
		if in.Author != "" {
			m.status = fmt.Sprintf("%s in #%s: %s", in.Author, in.Room, in.Text)
		} else {
			m.status = "new messages in #" + in.Room
		}
		m.statusErr = false
	}
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m *model) layout() {
	chatWidth := m.width - sidebarWidth - 4
	if chatWidth < 20 {
		chatWidth = 20
	}
	vpHeight := m.height - 8
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = chatWidth - 2
	m.viewport.Height = vpHeight
	m.input.Width = chatWidth - 4
	m.viewport.SetContent(m.renderLog())
}

func (m model) renderLog() string {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		if msg.System {
			b.WriteString(systemStyle.Render("· " + msg.Text))
			continue
		}
		author := authorStyle.Render(msg.Author)
		if msg.Author == m.self {
			author = selfStyle.Render(msg.Author)
		}
		b.WriteString(mutedStyle.Render(msg.Time) + " " + author + ": " + msg.Text)
		if msg.Edited {
			b.WriteString(mutedStyle.Render(" (edited)"))
		}
		if msg.Editable {
			b.WriteString(mutedStyle.Render("  #" + msg.ID))
		}
	}
	return b.String()
}

func (m model) renderRooms() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Rooms"))
	for _, r := range m.rooms {
		b.WriteByte('\n')
		line := r.Name
		if r.Deletable {
			line += " ★"
		}
		switch {
		case r.Active:
			b.WriteString(activeStyle.Render("> " + line))
		case r.Unread:
			b.WriteString(unreadStyle.Render("• " + line))
		default:
			b.WriteString("  " + line)
		}
	}
	return b.String()
}

func (m model) View() string {
	title := "no room, /join <room>"
	if m.active != "" {
		title = "#" + m.active
	}
	header := headerStyle.Render(title) + mutedStyle.Render(" as "+m.self)
	if !m.connected {
		banner := "disconnected"
		if m.connErr != nil {
			banner += ": " + m.connErr.Error()
		}
		header += " " + offlineStyle.Render(banner)
	}

	names := make([]string, 0, len(m.users))
	for _, u := range m.users {
		names = append(names, u.Username)
	}
	people := mutedStyle.Render("online: " + strings.Join(names, ", "))

	status := mutedStyle.Render(m.status)
	if m.statusErr {
		status = errorStyle.Render(m.status)
	}

	chat := chatStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		people,
		mutedStyle.Render(m.caption),
		m.input.View(),
	))
	sidebar := sidebarStyle.Width(sidebarWidth).Height(m.viewport.Height + 4).Render(m.renderRooms())
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chat),
		status,
	)
}
