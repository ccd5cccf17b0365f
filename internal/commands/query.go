package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/chat"
	"github.com/diogo/chatsync/internal/config"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/render"
)

// Gradient colors for animation
var gradientColors = []lipgloss.Color{
	lipgloss.Color("#ff6b6b"),
	lipgloss.Color("#feca57"),
	lipgloss.Color("#48dbfb"),
	lipgloss.Color("#ff9ff3"),
	lipgloss.Color("#54a0ff"),
	lipgloss.Color("#1dd1a1"),
}

var (
	colorText    = lipgloss.Color("#c0caf5")
	colorPrimary = lipgloss.Color("#7aa2f7")

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Foreground(colorText).
				Padding(0, 1).
				MarginBottom(1)
)

// spinner handles the animated loading indicator
type spinner struct {
	w       io.Writer
	message string
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	frame   int
}

func newSpinner(w io.Writer, message string) *spinner {
	return &spinner{
		w:       w,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *spinner) start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		fmt.Fprint(s.w, "\033[?25l")
		for {
			select {
			case <-s.stop:
				fmt.Fprint(s.w, "\r\033[K\033[?25h")
				return
			case <-ticker.C:
				s.render()
				s.frame++
			}
		}
	}()
}

func (s *spinner) render() {
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	color := gradientColors[s.frame%len(gradientColors)]
	char := lipgloss.NewStyle().Foreground(color).Bold(true).Render(chars[s.frame%len(chars)])
	dots := strings.Repeat(".", (s.frame/4)%4)
	fmt.Fprintf(s.w, "\r\033[K%s %s%s", char, lipgloss.NewStyle().Foreground(colorText).Render(s.message), dots)
}

// finish stops the animation and waits for the line to be cleared
func (s *spinner) finish() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

type queryOptions struct {
	model        string
	output       string
	file         string
	conversation int64
	template     string
	raw          bool
}

// streamPrinter writes the growing reply as it is merged into the store
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	store   *chat.Store
	earlier map[models.MessageID]bool
	printed string
}

func (p *streamPrinter) onChange(c chat.Change) {
	if c.Kind != chat.ChangeMessages {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	reply, ok := newReply(p.store.Messages(), p.earlier)
	if !ok || !strings.HasPrefix(reply.Content, p.printed) {
		return
	}
	fmt.Fprint(p.w, reply.Content[len(p.printed):])
	p.printed = reply.Content
}

// assistantIDs collects the ids of the replies already in msgs
func assistantIDs(msgs []models.Message) map[models.MessageID]bool {
	ids := make(map[models.MessageID]bool)
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			ids[m.ID] = true
		}
	}
	return ids
}

// newReply returns the last assistant message not in earlier
func newReply(msgs []models.Message, earlier map[models.MessageID]bool) (models.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant && !earlier[msgs[i].ID] {
			return msgs[i], true
		}
	}
	return models.Message{}, false
}

// readPrompt picks the prompt from --file, stdin or the argument
func readPrompt(cmd *cobra.Command, opts *queryOptions, args []string) (string, bool, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", false, fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), true, nil
	}

	if len(args) > 0 {
		return args[0], true, nil
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", false, nil
		}
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", false, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// runQuery sends a single message and prints the reply. On a terminal the
// reply is rendered as markdown once complete; otherwise it is streamed
// as it arrives.
func runQuery(cmd *cobra.Command, deps *Dependencies, opts *queryOptions, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	decorated := !opts.raw && opts.output == "" && deps.IsTTY()

	s, err := deps.openSession(errOut, sessionOptions{
		notifier:    chat.NotifierFunc(func(chat.Level, string) {}),
		logToStderr: verboseFlag,
		verbose:     verboseFlag,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if err := prepareQuery(ctx, deps, s, opts); err != nil {
		fmt.Fprintln(errOut, formatErrorMessage(err, "Failed to prepare the query"))
		return err
	}

	earlier := assistantIDs(s.store.Messages())

	var spin *spinner
	if decorated {
		spin = newSpinner(errOut, "Waiting for the reply")
		spin.start()
	} else if opts.output == "" {
		printer := &streamPrinter{w: out, store: s.store, earlier: earlier}
		unsubscribe := s.store.Subscribe(printer.onChange)
		defer unsubscribe()
	}

	err = s.store.SendMessage(ctx, prompt)
	if spin != nil {
		spin.finish()
	}
	if err != nil {
		fmt.Fprintln(errOut, formatErrorMessage(err, "Request failed"))
		return err
	}

	reply, ok := newReply(s.store.Messages(), earlier)
	if !ok {
		return fmt.Errorf("no reply received")
	}
	text := reply.Content

	if current, ok := s.store.Current(); ok && current.ID > 0 && !opts.raw {
		dimColor.Fprintf(errOut, "conversation %d\n", current.ID)
	}

	if s.cfg.CopyToClipboard {
		if err := deps.Clipboard(text); err != nil {
			warnColor.Fprintf(errOut, "⚠ Failed to copy to clipboard: %v\n", err)
		} else if !opts.raw {
			printSuccess(errOut, "Copied to clipboard")
		}
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		printSuccess(errOut, "Response saved to %s", opts.output)
		return nil
	}

	if !decorated {
		fmt.Fprintln(out)
		return nil
	}

	bubbleWidth := min(max(deps.TerminalWidth()-4, 40), 120)
	renderOpts := render.OptionsFromConfig(s.cfg.Markdown, bubbleWidth-4)
	rendered := strings.TrimRight(render.MarkdownOrPlain(text, renderOpts), "\n")

	label := assistantLabelStyle.Render("✦ " + s.store.Snapshot().SelectedModel)
	if reply.TokensUsed != nil {
		label += dimColor.Sprintf("  %d tokens", *reply.TokensUsed)
	}
	fmt.Fprintln(out, label)
	fmt.Fprintln(out, assistantBubbleStyle.Width(bubbleWidth).Render(rendered))
	return nil
}

// prepareQuery restores persisted settings without writing them back, then
// applies the flags for this query only
func prepareQuery(ctx context.Context, deps *Dependencies, s *session, opts *queryOptions) error {
	defaults := s.store.Settings()
	settings := defaults
	if kv, err := deps.OpenKV(s.cfg); err == nil {
		settings, err = config.LoadSettings(kv, defaults)
		if err != nil {
			s.logger.Warn("using default settings", "error", err)
		}
		_ = kv.Close()
	} else {
		s.logger.Warn("settings store unavailable", "error", err)
	}
	s.store.ApplySettings(settings)

	if opts.model != "" {
		s.store.SetModel(opts.model)
	}

	if opts.template != "" {
		if err := s.store.LoadTemplates(ctx); err != nil {
			return err
		}
		tmpl, err := findTemplate(s.store.Templates(), opts.template)
		if err != nil {
			return err
		}
		s.store.SelectTemplate(&tmpl)
	}

	if opts.conversation > 0 {
		if err := s.store.SelectConversation(ctx, models.Conversation{ID: opts.conversation}); err != nil {
			return err
		}
	}
	return nil
}

// findTemplate matches a template by id or case-insensitive name
func findTemplate(templates []models.PromptTemplate, ref string) (models.PromptTemplate, error) {
	id, _ := strconv.ParseInt(ref, 10, 64)
	for _, t := range templates {
		if (id > 0 && t.ID == id) || strings.EqualFold(t.Name, ref) {
			return t, nil
		}
	}
	return models.PromptTemplate{}, fmt.Errorf("template not found: %s", ref)
}
