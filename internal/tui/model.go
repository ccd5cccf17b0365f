package tui

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/chatsync/internal/chat"
	"github.com/diogo/chatsync/internal/coordinator"
	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/render"
)

// opDoneMsg reports the end of a blocking store or coordinator action
type opDoneMsg struct {
	action string
	err    error
}

// Options configures the chat TUI
type Options struct {
	Render render.Options
	// Conversation opens an existing conversation on start when positive
	Conversation int64
}

// Model represents the TUI state
type Model struct {
	ctx      context.Context
	store    *chat.Store
	coord    *coordinator.Coordinator
	notifier *Notifier
	feed     *changeFeed
	opts     Options

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// State
	snap        chat.Snapshot
	notice      noticeMsg
	hasNotice   bool
	showHelp    bool
	ready       bool
	copyToClip  func(string) error
	unsubscribe func()

	// Dimensions
	width  int
	height int
}

// NewChatModel creates a chat model over store and coord. notifier must be
// the one installed into both of them.
func NewChatModel(ctx context.Context, store *chat.Store, coord *coordinator.Coordinator, notifier *Notifier, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, or /help"
	ta.CharLimit = 8000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	feed, unsubscribe := newChangeFeed(store)

	return Model{
		ctx:         ctx,
		store:       store,
		coord:       coord,
		notifier:    notifier,
		feed:        feed,
		opts:        opts,
		textarea:    ta,
		spinner:     s,
		snap:        store.Snapshot(),
		copyToClip:  clipboard.WriteAll,
		unsubscribe: unsubscribe,
	}
}

// Init starts initialization and the change and notice feeds
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		m.spinner.Tick,
		m.feed.wait(),
		m.notifier.wait(),
		m.run("initialize", m.coord.Initialize),
	}
	if id := m.opts.Conversation; id > 0 {
		cmds = append(cmds, m.run("open", func(ctx context.Context) error {
			return m.store.SelectConversation(ctx, models.Conversation{ID: id})
		}))
	}
	return tea.Batch(cmds...)
}

// run wraps a blocking action in a command
func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{action: action, err: fn(ctx)}
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		inputHeight := 6
		statusHeight := 2
		padding := 2

		vpHeight := max(m.height-headerHeight-inputHeight-statusHeight-padding, 5)
		contentWidth := m.width - 4

		if !m.ready {
			m.viewport = viewport.New(contentWidth, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(contentWidth - 4)
		m.updateViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()

		case "esc":
			if m.snap.Streaming || m.snap.Loading {
				m.store.StopStreaming()
				return m, nil
			}
			if m.showHelp {
				m.showHelp = false
				return m, nil
			}
			return m.quit()

		case "enter":
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m.handleInput(input)
		}

	case changeMsg:
		m.snap = m.store.Snapshot()
		m.updateViewport()
		if msg.kind == chat.ChangeMessages {
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, m.feed.wait())

	case noticeMsg:
		m.notice = msg
		m.hasNotice = true
		cmds = append(cmds, m.notifier.wait())

	case opDoneMsg:
		// Store actions report their own failures through the notifier
		if msg.err != nil && !apierrors.IsAborted(msg.err) && m.store.Error() == "" {
			m.setNotice(chat.LevelError, FormatError(msg.err))
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if _, ok := msg.(tea.KeyMsg); ok {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.store.StopStreaming()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

func (m *Model) setNotice(level chat.Level, message string) {
	m.notice = noticeMsg{level: level, message: message}
	m.hasNotice = true
}

// handleInput sends a message or runs a slash command
func (m Model) handleInput(input string) (tea.Model, tea.Cmd) {
	m.hasNotice = false
	m.showHelp = false

	c, ok := parseCommand(input)
	if !ok {
		if m.snap.Streaming || m.snap.Loading {
			m.setNotice(chat.LevelInfo, "Wait for the reply to finish, or press Esc to stop it")
			return m, nil
		}
		return m, m.run("send", func(ctx context.Context) error {
			return m.store.SendMessage(ctx, input)
		})
	}

	switch c.name {
	case cmdQuit:
		return m.quit()

	case cmdHelp:
		m.showHelp = true

	case cmdNew:
		m.store.CreateNewConversation()

	case cmdStop:
		m.store.StopStreaming()

	case cmdRegen:
		return m, m.run("regenerate", m.store.RegenerateLastResponse)

	case cmdRefresh:
		if c.arg == "" {
			return m, m.run("refresh", m.coord.RefreshAll)
		}
		kind, err := coordinator.ParseKind(strings.ToLower(c.arg))
		if err != nil {
			m.setNotice(chat.LevelError, "Usage: /refresh [conversations|messages|templates|folders]")
			return m, nil
		}
		return m, m.run("refresh", func(ctx context.Context) error {
			return m.coord.Invalidate(ctx, kind)
		})

	case cmdRecover:
		return m, m.run("recover", m.coord.Recover)

	case cmdOpen:
		id, err := strconv.ParseInt(c.arg, 10, 64)
		if err != nil || id <= 0 {
			m.setNotice(chat.LevelError, "Usage: /open <conversation id>")
			return m, nil
		}
		conv := models.Conversation{ID: id}
		if i := slices.IndexFunc(m.snap.Conversations, func(c models.Conversation) bool { return c.ID == id }); i >= 0 {
			conv = m.snap.Conversations[i]
		}
		return m, m.run("open", func(ctx context.Context) error {
			return m.store.SelectConversation(ctx, conv)
		})

	case cmdCopy:
		m.copyLastReply()

	case cmdExport:
		m.copyExport(c.arg)

	case cmdModel:
		if c.arg == "" {
			m.setNotice(chat.LevelInfo, fmt.Sprintf("Model: %s (available: %s)", m.snap.SelectedModel, strings.Join(models.AvailableModels(), ", ")))
			return m, nil
		}
		m.store.SetModel(c.arg)
		m.setNotice(chat.LevelSuccess, "Model set to "+c.arg)

	case cmdTemplate:
		m.selectTemplate(c.arg)

	case cmdHistory:
		n, err := strconv.Atoi(c.arg)
		if err == nil {
			err = m.store.SetHistoryLimit(n)
		}
		if err != nil {
			m.setNotice(chat.LevelError, "Usage: /history <positive number>")
			return m, nil
		}
		m.setNotice(chat.LevelSuccess, fmt.Sprintf("Sending the last %d messages as context", n))

	default:
		m.setNotice(chat.LevelError, fmt.Sprintf("Unknown command /%s, try /help", c.name))
	}

	return m, nil
}

func (m *Model) lastReply() (string, bool) {
	for i := len(m.snap.Messages) - 1; i >= 0; i-- {
		if msg := m.snap.Messages[i]; msg.Role == models.RoleAssistant && msg.Content != "" {
			return msg.Content, true
		}
	}
	return "", false
}

func (m *Model) copyLastReply() {
	reply, ok := m.lastReply()
	if !ok {
		m.setNotice(chat.LevelInfo, "Nothing to copy yet")
		return
	}
	if err := m.copyToClip(reply); err != nil {
		m.setNotice(chat.LevelError, "Copy failed: "+err.Error())
		return
	}
	m.setNotice(chat.LevelSuccess, "Reply copied to clipboard")
}

func (m *Model) copyExport(arg string) {
	format, err := chat.ParseExportFormat(arg)
	if err != nil {
		m.setNotice(chat.LevelError, err.Error())
		return
	}
	current, ok := m.store.Current()
	if !ok {
		m.setNotice(chat.LevelInfo, "No conversation to export")
		return
	}
	data, err := chat.Export(current, m.store.Messages(), format)
	if err == nil {
		err = m.copyToClip(string(data))
	}
	if err != nil {
		m.setNotice(chat.LevelError, "Export failed: "+err.Error())
		return
	}
	m.setNotice(chat.LevelSuccess, fmt.Sprintf("Conversation copied as %s", format))
}

func (m *Model) selectTemplate(name string) {
	switch strings.ToLower(name) {
	case "":
		if m.snap.SelectedTemplate == nil {
			m.setNotice(chat.LevelInfo, "No template selected")
		} else {
			m.setNotice(chat.LevelInfo, "Template: "+m.snap.SelectedTemplate.Name)
		}
		return
	case "none", "off":
		m.store.SelectTemplate(nil)
		m.setNotice(chat.LevelSuccess, "Template cleared")
		return
	}

	for _, t := range m.store.Templates() {
		if strings.EqualFold(t.Name, name) {
			m.store.SelectTemplate(&t)
			m.setNotice(chat.LevelSuccess, "Template set to "+t.Name)
			return
		}
	}
	m.setNotice(chat.LevelError, fmt.Sprintf("No template named %q", name))
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	contentWidth := m.width - 4
	sections := []string{m.renderHeader(contentWidth)}

	var messagesContent string
	switch {
	case m.showHelp:
		messagesContent = helpText()
	case len(m.snap.Messages) == 0:
		messagesContent = m.renderWelcome()
	default:
		messagesContent = m.viewport.View()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messagesContent))

	var inputContent string
	if m.snap.Streaming || m.snap.Loading {
		inputContent = m.spinner.View() + loadingStyle.Render(" Replying...") + hintStyle.Render("  Esc to stop")
	} else {
		inputContent = lipgloss.JoinVertical(lipgloss.Left, inputLabelStyle.Render("You"), m.textarea.View())
	}
	sections = append(sections, inputPanelStyle.Width(contentWidth).Render(inputContent))

	sections = append(sections, m.renderStatusBar(contentWidth))
	if line := m.renderNotice(); line != "" {
		sections = append(sections, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader(width int) string {
	title := "New conversation"
	if cur := m.snap.Current; cur != nil && cur.Title != "" {
		title = cur.Title
	}

	parts := []string{
		titleStyle.Render("✦ chatsync"),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(m.snap.SelectedModel),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(title),
	}
	if t := m.snap.SelectedTemplate; t != nil {
		parts = append(parts, hintStyle.Render("  •  "), templateBadgeStyle.Render("⚑ "+t.Name))
	}
	return headerStyle.Width(width).Render(lipgloss.JoinHorizontal(lipgloss.Center, parts...))
}

func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4

	lines := []string{
		"",
		welcomeTitleStyle.Width(width).Render("Welcome to chatsync"),
		"",
		welcomeStyle.Width(width).Render("Type a message below to start a conversation"),
	}
	if n := len(m.snap.Conversations); n > 0 {
		lines = append(lines, welcomeStyle.Width(width).Render(fmt.Sprintf("%d saved conversations, /open <id> to continue one", n)))
	}
	content := lipgloss.JoinVertical(lipgloss.Center, lines...)

	topPadding := max((m.viewport.Height-lipgloss.Height(content))/2, 0)
	return strings.Repeat("\n", topPadding) + content
}

func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"Esc", "Stop/Quit"},
		{"↑↓", "Scroll"},
		{"/help", "Commands"},
	}

	var items []string
	for _, s := range shortcuts {
		items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
	}

	left := strings.Join(items, "  │  ")
	right := statusDescStyle.Render(fmt.Sprintf("context %d", m.snap.HistoryLimit))
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return statusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderNotice() string {
	if m.snap.Error != "" {
		return errorStyle.Render("⚠ " + m.snap.Error)
	}
	if !m.hasNotice {
		return ""
	}
	switch m.notice.level {
	case chat.LevelError:
		return errorStyle.Render(m.notice.message)
	case chat.LevelSuccess:
		return successStyle.Render("✓ " + m.notice.message)
	default:
		return infoStyle.Render(m.notice.message)
	}
}

// updateViewport refreshes the viewport content with styled messages
func (m *Model) updateViewport() {
	if !m.ready {
		return
	}

	var content strings.Builder
	bubbleWidth := m.viewport.Width - 6
	opts := m.opts.Render.WithWidth(bubbleWidth - 4)

	for i, msg := range m.snap.Messages {
		if i > 0 {
			content.WriteString("\n")
		}

		if msg.Role == models.RoleUser {
			label := userLabelStyle.Render("⬤ You")
			bubble := userBubbleStyle.Width(bubbleWidth).Render(msg.Content)
			content.WriteString(label + "\n" + bubble)
		} else {
			label := assistantLabelStyle.Render("✦ Assistant")
			if msg.TokensUsed != nil {
				label += tokensStyle.Render(fmt.Sprintf("  %d tokens", *msg.TokensUsed))
			}

			body := render.MarkdownOrPlain(msg.Content, opts)
			if msg.IsStreaming {
				body += loadingStyle.Render(" ▌")
			}
			content.WriteString(label + "\n" + assistantBubbleStyle.Width(bubbleWidth).Render(body))
		}
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
}

// RunChat starts the chat TUI and blocks until the user leaves
func RunChat(ctx context.Context, store *chat.Store, coord *coordinator.Coordinator, notifier *Notifier, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewChatModel(ctx, store, coord, notifier, opts)
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := p.Run()
	return err
}
