package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogo/chatsync/internal/api"
	"github.com/diogo/chatsync/internal/chat"
	"github.com/diogo/chatsync/internal/coordinator"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/render"
	"github.com/diogo/chatsync/internal/storage"
)

type tuiFixture struct {
	api      *api.MockChatAPI
	streamer *api.MockStreamer
	store    *chat.Store
	model    Model
	copied   []string
}

func newTUIFixture(t *testing.T) *tuiFixture {
	t.Helper()

	kv, err := storage.Open(storage.BackendFile, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	f := &tuiFixture{api: api.NewMockChatAPI(), streamer: &api.MockStreamer{}}
	f.api.Templates = []models.PromptTemplate{{ID: 3, Name: "Reviewer", Content: "Review the code"}}

	notifier := NewNotifier()
	f.store = chat.NewStore(f.api, f.streamer, chat.WithNotifier(notifier))
	coord := coordinator.New(f.store, kv, coordinator.WithNotifier(notifier))
	t.Cleanup(func() { coord.Close() })

	f.model = NewChatModel(context.Background(), f.store, coord, notifier, Options{Render: render.DefaultOptions()})
	f.model.copyToClip = func(s string) error {
		f.copied = append(f.copied, s)
		return nil
	}
	f.update(t, tea.WindowSizeMsg{Width: 100, Height: 40})
	return f
}

func (f *tuiFixture) update(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := f.model.Update(msg)
	m, ok := next.(Model)
	require.True(t, ok)
	f.model = m
	return cmd
}

// input runs a line through handleInput and executes the resulting action
func (f *tuiFixture) input(t *testing.T, line string) tea.Msg {
	t.Helper()
	next, cmd := f.model.handleInput(line)
	f.model = next.(Model)
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  slashCommand
		ok    bool
	}{
		{"hello", slashCommand{}, false},
		{"/", slashCommand{}, false},
		{"  /new  ", slashCommand{name: cmdNew}, true},
		{"/MODEL gpt-4o", slashCommand{name: cmdModel, arg: "gpt-4o"}, true},
		{"/template  Code Reviewer ", slashCommand{name: cmdTemplate, arg: "Code Reviewer"}, true},
		{"/q", slashCommand{name: cmdQuit}, true},
		{"/exit", slashCommand{name: cmdQuit}, true},
		{"/retry", slashCommand{name: cmdRegen}, true},
		{"/clear", slashCommand{name: cmdNew}, true},
		{"/unknown x", slashCommand{name: "unknown", arg: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseCommand(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHelpText_ListsEveryCommand(t *testing.T) {
	text := helpText()
	for _, h := range commandHelp {
		assert.Contains(t, text, h.name)
	}
}

func TestSendMessage(t *testing.T) {
	f := newTUIFixture(t)
	user := models.Message{ID: models.PersistedID(1), ConversationID: 7, Role: models.RoleUser, Content: "hello"}
	f.streamer.Events = []api.Event{
		api.InitEvent{ConversationID: 7, UserMessage: &user},
		api.ChunkEvent{Content: "Hi"},
		api.FinalEvent{MessageID: 2, Content: "Hi there"},
		api.DoneEvent{},
	}

	msg := f.input(t, "hello")
	done, ok := msg.(opDoneMsg)
	require.True(t, ok)
	assert.Equal(t, "send", done.action)
	require.NoError(t, done.err)

	f.update(t, changeMsg{kind: chat.ChangeMessages})
	require.Len(t, f.model.snap.Messages, 2)
	assert.Equal(t, "Hi there", f.model.snap.Messages[1].Content)
	assert.Contains(t, f.model.viewport.View(), "there")
}

func TestSendMessage_WhileStreaming(t *testing.T) {
	f := newTUIFixture(t)
	f.model.snap.Streaming = true

	msg := f.input(t, "hello")
	assert.Nil(t, msg)
	assert.Equal(t, chat.LevelInfo, f.model.notice.level)
	assert.Empty(t, f.streamer.Requests())
}

func TestCommands_Model(t *testing.T) {
	f := newTUIFixture(t)

	f.input(t, "/model gpt-4o")
	assert.Equal(t, "gpt-4o", f.store.Snapshot().SelectedModel)
	assert.Equal(t, chat.LevelSuccess, f.model.notice.level)

	f.input(t, "/model")
	assert.Contains(t, f.model.notice.message, "gpt-4o")
}

func TestCommands_History(t *testing.T) {
	f := newTUIFixture(t)

	f.input(t, "/history 4")
	assert.Equal(t, 4, f.store.Snapshot().HistoryLimit)

	f.input(t, "/history zero")
	assert.Equal(t, chat.LevelError, f.model.notice.level)
	assert.Equal(t, 4, f.store.Snapshot().HistoryLimit)
}

func TestCommands_Template(t *testing.T) {
	f := newTUIFixture(t)
	require.NoError(t, f.store.LoadTemplates(context.Background()))

	f.input(t, "/template reviewer")
	tmpl, ok := f.store.SelectedTemplate()
	require.True(t, ok)
	assert.Equal(t, int64(3), tmpl.ID)

	f.input(t, "/template missing")
	assert.Equal(t, chat.LevelError, f.model.notice.level)

	f.input(t, "/template none")
	_, ok = f.store.SelectedTemplate()
	assert.False(t, ok)
}

func TestCommands_Copy(t *testing.T) {
	f := newTUIFixture(t)

	f.input(t, "/copy")
	assert.Empty(t, f.copied)
	assert.Equal(t, "Nothing to copy yet", f.model.notice.message)

	f.model.snap.Messages = []models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "answer"},
	}
	f.input(t, "/copy")
	assert.Equal(t, []string{"answer"}, f.copied)

	f.model.copyToClip = func(string) error { return errors.New("no clipboard") }
	f.input(t, "/copy")
	assert.Equal(t, chat.LevelError, f.model.notice.level)
}

func TestCommands_Export(t *testing.T) {
	f := newTUIFixture(t)

	f.input(t, "/export")
	assert.Equal(t, "No conversation to export", f.model.notice.message)

	f.api.Messages[5] = []models.Message{
		{ID: models.PersistedID(1), ConversationID: 5, Role: models.RoleUser, Content: "ping"},
	}
	msg := f.input(t, "/open 5")
	require.NoError(t, msg.(opDoneMsg).err)

	f.input(t, "/export json")
	require.Len(t, f.copied, 1)
	assert.Contains(t, f.copied[0], `"ping"`)

	f.input(t, "/export pdf")
	assert.Equal(t, chat.LevelError, f.model.notice.level)
}

func TestCommands_OpenInvalid(t *testing.T) {
	f := newTUIFixture(t)

	assert.Nil(t, f.input(t, "/open abc"))
	assert.Equal(t, chat.LevelError, f.model.notice.level)
}

func TestCommands_RefreshKind(t *testing.T) {
	f := newTUIFixture(t)
	f.api.Folders = []models.Folder{{ID: 4, Name: "Work"}}

	msg := f.input(t, "/refresh folders")
	require.NoError(t, msg.(opDoneMsg).err)
	assert.Len(t, f.store.Folders(), 1)
	assert.Zero(t, f.api.CallCount("ListConversations"))

	assert.Nil(t, f.input(t, "/refresh everything"))
	assert.Equal(t, chat.LevelError, f.model.notice.level)
}

func TestCommands_Unknown(t *testing.T) {
	f := newTUIFixture(t)

	f.input(t, "/frobnicate")
	assert.Contains(t, f.model.notice.message, "/frobnicate")
}

func TestCommands_HelpAndQuit(t *testing.T) {
	f := newTUIFixture(t)

	f.input(t, "/help")
	assert.True(t, f.model.showHelp)
	assert.Contains(t, f.model.View(), "/regen")

	cmd := f.update(t, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, f.model.showHelp)
	assert.Nil(t, cmd)

	cmd = f.update(t, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestNoticeMsg(t *testing.T) {
	f := newTUIFixture(t)

	f.update(t, noticeMsg{level: chat.LevelSuccess, message: "Saved"})
	assert.True(t, strings.Contains(f.model.renderNotice(), "Saved"))
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	n := NewNotifier()
	for range cap(n.ch) + 5 {
		n.Notify(chat.LevelInfo, "x")
	}
	assert.Len(t, n.ch, cap(n.ch))

	msg := n.wait()()
	assert.Equal(t, noticeMsg{level: chat.LevelInfo, message: "x"}, msg)
}

func TestView_Welcome(t *testing.T) {
	f := newTUIFixture(t)

	view := f.model.View()
	assert.Contains(t, view, "Welcome to chatsync")
	assert.Contains(t, view, models.DefaultModelName)
}

func TestRecover_ClearsErrorAndReloads(t *testing.T) {
	f := newTUIFixture(t)
	f.api.Errs["ListConversations"] = errors.New("backend down")

	msg := f.input(t, "/refresh conversations")
	done, ok := msg.(opDoneMsg)
	require.True(t, ok)
	assert.Error(t, done.err)
	assert.NotEmpty(t, f.store.Error())

	delete(f.api.Errs, "ListConversations")
	msg = f.input(t, "/recover")
	done, ok = msg.(opDoneMsg)
	require.True(t, ok)
	assert.Equal(t, "recover", done.action)
	assert.NoError(t, done.err)
	assert.Empty(t, f.store.Error())
	assert.Equal(t, 1, f.api.CallCount("ListTemplates"))
	assert.Len(t, f.store.Templates(), 1)
}
