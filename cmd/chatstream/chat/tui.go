package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/llm"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

// chrome is the number of lines around the viewport: header, rule, status,
// input, and help.
const chrome = 5

var (
	tuiTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	tuiMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tuiRuleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	tuiCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type chatKeyMap struct {
	Submit key.Binding
	Abort  key.Binding
	Wider  key.Binding
	Narrow key.Binding
	Scroll key.Binding
	Quit   key.Binding
}

func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Abort, k.Wider, k.Narrow, k.Scroll, k.Quit}
}

func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Submit, k.Abort}, {k.Wider, k.Narrow, k.Scroll, k.Quit}}
}

func defaultKeyMap() chatKeyMap {
	return chatKeyMap{
		Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Abort:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		Wider:  key.NewBinding(key.WithKeys("ctrl+up"), key.WithHelp("ctrl+↑", "more history")),
		Narrow: key.NewBinding(key.WithKeys("ctrl+down"), key.WithHelp("ctrl+↓", "less history")),
		Scroll: key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "scroll")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// snapshotMsg carries a conversation snapshot into the bubbletea loop.
type snapshotMsg conversation.Snapshot

// snapshotFeed hands snapshots from the session's goroutine to the
// bubbletea loop. It holds at most one snapshot; a newer one replaces an
// unread older one, so a slow UI only ever renders the latest state.
type snapshotFeed struct {
	ch chan conversation.Snapshot
}

func newSnapshotFeed() *snapshotFeed {
	return &snapshotFeed{ch: make(chan conversation.Snapshot, 1)}
}

func (f *snapshotFeed) push(snap conversation.Snapshot) {
	for {
		select {
		case f.ch <- snap:
			return
		default:
		}

		select {
		case <-f.ch:
		default:
		}
	}
}

func (f *snapshotFeed) next() bubbletea.Cmd {
	return func() bubbletea.Msg {
		return snapshotMsg(<-f.ch)
	}
}

// renderedMessage caches the markdown rendering of a finished assistant
// message.
type renderedMessage struct {
	content string
	width   int
	out     string
}

type chatModel struct {
	ctrl     *chat.Controller
	feed     *snapshotFeed
	snap     conversation.Snapshot
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	keys     chatKeyMap
	help     help.Model
	rendered map[int]renderedMessage
	notice   string
	width    int
	height   int
	ready    bool
}

func runTUI(ctx context.Context, ctrl *chat.Controller) error {
	feed := newSnapshotFeed()
	unsubscribe := ctrl.Subscribe(feed.push)
	defer unsubscribe()

	program := bubbletea.NewProgram(newChatModel(ctrl, feed),
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()

	ctrl.Abort()
	if errors.Is(err, bubbletea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newChatModel(ctrl *chat.Controller, feed *snapshotFeed) chatModel {
	input := textinput.New()
	input.Placeholder = "Send a message"
	input.Prompt = cliui.UserPrompt
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = tuiCursorStyle

	return chatModel{
		ctrl:     ctrl,
		feed:     feed,
		snap:     ctrl.Snapshot(),
		input:    input,
		spinner:  spin,
		keys:     defaultKeyMap(),
		help:     help.New(),
		rendered: map[int]renderedMessage{},
	}
}

func (m chatModel) Init() bubbletea.Cmd {
	return bubbletea.Batch(textinput.Blink, m.feed.next())
}

func (m chatModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, max(msg.Height-chrome, 1))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = max(msg.Height-chrome, 1)
		}
		m.input.Width = max(msg.Width-lipgloss.Width(m.input.Prompt)-1, 1)
		m.refresh()
		return m, nil

	case snapshotMsg:
		wasStreaming := m.snap.IsStreaming
		m.snap = conversation.Snapshot(msg)
		m.refresh()
		cmds := []bubbletea.Cmd{m.feed.next()}
		if m.snap.IsStreaming && !wasStreaming {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, bubbletea.Batch(cmds...)

	case spinner.TickMsg:
		if !m.snap.IsStreaming {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m chatModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Abort()
		return m, bubbletea.Quit

	case key.Matches(msg, m.keys.Abort):
		if m.ctrl.Abort() {
			m.notice = ""
		}
		return m, nil

	case key.Matches(msg, m.keys.Wider):
		m.setHistoryWindow(m.snap.HistoryWindow + 1)
		return m, nil

	case key.Matches(msg, m.keys.Narrow):
		m.setHistoryWindow(m.snap.HistoryWindow - 1)
		return m, nil

	case key.Matches(msg, m.keys.Scroll):
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd bubbletea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.ctrl.OnInputChange(value)
	}
	return m, cmd
}

func (m chatModel) submit() (bubbletea.Model, bubbletea.Cmd) {
	input := strings.TrimSpace(m.input.Value())

	switch {
	case input == exitCommand:
		m.ctrl.Abort()
		return m, bubbletea.Quit

	case isHistoryCommand(input):
		n, err := parseHistoryCommand(input)
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.setHistoryWindow(n)
		m.resetInput()
		return m, nil
	}

	if m.ctrl.Submit() {
		m.notice = ""
		m.resetInput()
		return m, nil
	}

	if m.snap.IsStreaming {
		m.notice = "A reply is still streaming. Press esc to stop it."
	}
	return m, nil
}

func (m *chatModel) resetInput() {
	m.input.Reset()
	m.ctrl.OnInputChange("")
}

func (m *chatModel) setHistoryWindow(n int) {
	m.ctrl.SetHistoryWindow(n)
	m.snap.HistoryWindow = m.ctrl.Snapshot().HistoryWindow
	m.notice = fmt.Sprintf("History window: %d messages", m.snap.HistoryWindow)
}

// refresh re-renders the conversation into the viewport and keeps it
// pinned to the bottom while the user has not scrolled up.
func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom || m.snap.IsStreaming {
		m.viewport.GotoBottom()
	}
}

func (m *chatModel) renderMessages() string {
	width := max(m.width-2, 20)

	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}

		if msg.Role == llm.RoleUser {
			b.WriteString(cliui.UserPrompt)
			b.WriteString(lipgloss.NewStyle().Width(width - lipgloss.Width(cliui.UserPrompt)).Render(msg.Content))
			b.WriteString("\n")
			continue
		}

		b.WriteString(cliui.AssistantPrompt)
		b.WriteString("\n")

		streaming := m.snap.IsStreaming && i == len(m.snap.Messages)-1
		if streaming {
			b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content))
			b.WriteString(tuiCursorStyle.Render("▍"))
			b.WriteString("\n")
			continue
		}

		b.WriteString(m.renderMarkdown(i, msg.Content, width))
	}

	return b.String()
}

func (m *chatModel) renderMarkdown(idx int, content string, width int) string {
	if cached, ok := m.rendered[idx]; ok && cached.content == content && cached.width == width {
		return cached.out
	}

	out, err := cliui.RenderMarkdown(content, width)
	if err != nil {
		out = lipgloss.NewStyle().Width(width).Render(content) + "\n"
	}

	m.rendered[idx] = renderedMessage{content: content, width: width, out: out}
	return out
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  " + tuiMutedStyle.Render("Starting...")
	}

	lines := []string{
		m.viewHeader(),
		m.viewport.View(),
		tuiRuleStyle.Render(strings.Repeat("─", max(m.width, 1))),
		m.viewStatus(),
		m.input.View(),
		tuiMutedStyle.Render(m.help.View(m.keys)),
	}
	return strings.Join(lines, "\n")
}

func (m chatModel) viewHeader() string {
	left := tuiTitleStyle.Render("chatstream")
	right := tuiMutedStyle.Render(fmt.Sprintf("%s · history %d", m.snap.Model, m.snap.HistoryWindow))

	spacing := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacing < 1 {
		return ansi.Truncate(left+" "+right, max(m.width, 1), "…")
	}
	return left + strings.Repeat(" ", spacing) + right
}

func (m chatModel) viewStatus() string {
	switch {
	case m.snap.IsStreaming:
		return m.spinner.View() + " " + tuiMutedStyle.Render("Streaming reply... (esc to stop)")
	case m.notice != "":
		return cliui.WarnStyle.Render(m.notice)
	default:
		return ""
	}
}
