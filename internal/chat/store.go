// Package chat holds the authoritative client-side model of conversations,
// messages, templates and folders, and merges streamed replies into it.
package chat

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/diogo/chatsync/internal/api"
	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/pending"
)

// ChangeKind names the part of the state that changed
type ChangeKind string

const (
	ChangeConversations ChangeKind = "conversations"
	ChangeMessages      ChangeKind = "messages"
	ChangeTemplates     ChangeKind = "templates"
	ChangeFolders       ChangeKind = "folders"
	ChangeSettings      ChangeKind = "settings"
	ChangeState         ChangeKind = "state"
)

// Change is delivered to subscribers after every mutation
type Change struct {
	Kind ChangeKind
}

// Snapshot is a consistent copy of the store state
type Snapshot struct {
	Conversations    []models.Conversation
	Current          *models.Conversation
	Messages         []models.Message
	Templates        []models.PromptTemplate
	Folders          []models.Folder
	SelectedModel    string
	SelectedTemplate *models.PromptTemplate
	FolderFilter     models.FolderFilter
	SearchKeyword    string
	HistoryLimit     int
	Loading          bool
	Streaming        bool
	Error            string
}

// Store is the single source of truth for chat state. Every mutation goes
// through its methods; readers receive copies. The lock is never held
// across network calls.
type Store struct {
	api      api.ChatAPI
	streamer api.Streamer
	pending  *pending.Set
	notifier Notifier
	logger   *slog.Logger

	mu               sync.RWMutex
	conversations    []models.Conversation
	current          *models.Conversation
	messages         []models.Message
	templates        []models.PromptTemplate
	folders          []models.Folder
	selectedModel    string
	selectedTemplate *models.PromptTemplate
	folderFilter     models.FolderFilter
	keyword          string
	historyLimit     int
	loading          bool
	lastError        string
	// epoch changes whenever a different conversation becomes current
	epoch uint64

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// Option configures a Store
type Option func(*Store)

// WithPending shares an operation set with other components
func WithPending(set *pending.Set) Option {
	return func(s *Store) {
		if set != nil {
			s.pending = set
		}
	}
}

// WithNotifier sets where user-facing messages go
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store backed by chatAPI and streamer
func NewStore(chatAPI api.ChatAPI, streamer api.Streamer, opts ...Option) *Store {
	defaults := models.DefaultSettings()
	s := &Store{
		api:           chatAPI,
		streamer:      streamer,
		pending:       pending.New(),
		notifier:      nopNotifier{},
		logger:        slog.Default(),
		selectedModel: defaults.SelectedModel,
		historyLimit:  defaults.HistoryLimit,
		folderFilter:  models.AllFolders(),
		subs:          make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// Pending returns the operation set guarding single-flight work
func (s *Store) Pending() *pending.Set {
	return s.pending
}

// Subscribe registers fn for change notifications. fn runs synchronously
// on the goroutine that made the change, after the lock is released.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) emit(kinds ...ChangeKind) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, kind := range kinds {
		for _, fn := range fns {
			fn(Change{Kind: kind})
		}
	}
}

// fail records err at the action boundary: it sets the error string,
// notifies the user and returns err unchanged. Aborts are passed through
// silently.
func (s *Store) fail(action string, err error) error {
	if apierrors.IsAborted(err) {
		s.logger.Debug("action aborted", "action", action)
		return err
	}

	msg := apierrors.UserMessage(err)
	s.logger.Error("action failed", "action", action, "error", err)

	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()

	s.notifier.Notify(LevelError, msg)
	s.emit(ChangeState)
	return err
}

// Snapshot returns a copy of the whole state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Conversations: slices.Clone(s.conversations),
		Messages:      slices.Clone(s.messages),
		Templates:     slices.Clone(s.templates),
		Folders:       slices.Clone(s.folders),
		SelectedModel: s.selectedModel,
		FolderFilter:  s.folderFilter,
		SearchKeyword: s.keyword,
		HistoryLimit:  s.historyLimit,
		Loading:       s.loading,
		Streaming:     s.streamer.IsStreaming(),
		Error:         s.lastError,
	}
	if s.current != nil {
		c := *s.current
		snap.Current = &c
	}
	if s.selectedTemplate != nil {
		t := *s.selectedTemplate
		snap.SelectedTemplate = &t
	}
	return snap
}

// Conversations returns the loaded conversation list
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conversations)
}

// Messages returns the messages of the current conversation
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Current returns the current conversation, if any. A zero ID means the
// conversation has not been persisted yet.
func (s *Store) Current() (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Conversation{}, false
	}
	return *s.current, true
}

// CurrentID returns the server id of the current conversation, or 0
func (s *Store) CurrentID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

// IsLoading reports whether a send is in progress
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// IsStreaming reports whether a reply is being streamed
func (s *Store) IsStreaming() bool {
	return s.streamer.IsStreaming()
}

// Error returns the last user-facing error, or ""
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// ClearError resets the error string
func (s *Store) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
	s.emit(ChangeState)
}

// SetModel selects the model used for the next sends
func (s *Store) SetModel(name string) {
	s.mu.Lock()
	s.selectedModel = name
	s.mu.Unlock()
	s.emit(ChangeSettings)
}

// SetHistoryLimit sets how many previous messages the backend includes
func (s *Store) SetHistoryLimit(n int) error {
	if n <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", n)
	}
	s.mu.Lock()
	s.historyLimit = n
	s.mu.Unlock()
	s.emit(ChangeSettings)
	return nil
}

// SetSearchKeyword sets the keyword used by LoadConversations
func (s *Store) SetSearchKeyword(keyword string) {
	s.mu.Lock()
	s.keyword = keyword
	s.mu.Unlock()
	s.emit(ChangeState)
}

// SetFolderFilter sets the folder selection used by LoadConversations
func (s *Store) SetFolderFilter(filter models.FolderFilter) {
	s.mu.Lock()
	s.folderFilter = filter
	s.mu.Unlock()
	s.emit(ChangeState)
}

// FolderFilter returns the current folder selection
func (s *Store) FolderFilter() models.FolderFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folderFilter
}

// Settings returns the durable part of the selection state.
// LastSyncTime is owned by the caller and left zero.
func (s *Store) Settings() models.PersistedSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := models.PersistedSettings{
		SelectedModel: s.selectedModel,
		HistoryLimit:  s.historyLimit,
	}
	if s.selectedTemplate != nil {
		t := *s.selectedTemplate
		settings.SelectedTemplate = &t
	}
	return settings
}

// ApplySettings restores persisted selection state
func (s *Store) ApplySettings(settings models.PersistedSettings) {
	s.mu.Lock()
	if settings.SelectedModel != "" {
		s.selectedModel = settings.SelectedModel
	}
	if settings.HistoryLimit > 0 {
		s.historyLimit = settings.HistoryLimit
	}
	s.selectedTemplate = nil
	if settings.SelectedTemplate != nil {
		t := *settings.SelectedTemplate
		s.selectedTemplate = &t
	}
	s.mu.Unlock()
	s.emit(ChangeSettings)
}
