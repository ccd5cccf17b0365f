package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/diogo/chatsync/internal/chat"
)

type noticeMsg struct {
	level   chat.Level
	message string
}

// Notifier buffers store and coordinator notifications for the TUI.
// Notifications that arrive while the buffer is full are dropped.
type Notifier struct {
	ch chan noticeMsg
}

// NewNotifier creates a notifier to install into the store and coordinator
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan noticeMsg, 32)}
}

// Notify implements chat.Notifier
func (n *Notifier) Notify(level chat.Level, message string) {
	select {
	case n.ch <- noticeMsg{level: level, message: message}:
	default:
	}
}

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		return <-n.ch
	}
}

type changeMsg struct {
	kind chat.ChangeKind
}

// changeFeed forwards store changes into the program. Bursts are
// coalesced since every change triggers a full snapshot.
type changeFeed struct {
	ch chan chat.ChangeKind
}

func newChangeFeed(store *chat.Store) (*changeFeed, func()) {
	f := &changeFeed{ch: make(chan chat.ChangeKind, 64)}
	unsubscribe := store.Subscribe(func(c chat.Change) {
		select {
		case f.ch <- c.Kind:
		default:
		}
	})
	return f, unsubscribe
}

func (f *changeFeed) wait() tea.Cmd {
	return func() tea.Msg {
		return changeMsg{kind: <-f.ch}
	}
}
