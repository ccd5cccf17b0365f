package api

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
)

// MockChatAPI is an in-memory implementation of ChatAPI for testing
type MockChatAPI struct {
	mu sync.Mutex

	Conversations []models.Conversation
	Messages      map[int64][]models.Message
	Templates     []models.PromptTemplate
	Folders       []models.Folder

	// Errs makes the named method fail, e.g. Errs["ListConversations"]
	Errs map[string]error
	// Block, when set, runs at the start of every call and can stall it
	Block func(ctx context.Context, method string) error

	calls                []string
	queries              []ConversationQuery
	batchDeletedMessages [][]int64
	batchDeletedConvs    [][]int64
	nextID               int64
}

var _ ChatAPI = (*MockChatAPI)(nil)

// NewMockChatAPI creates an empty mock
func NewMockChatAPI() *MockChatAPI {
	return &MockChatAPI{
		Messages: make(map[int64][]models.Message),
		Errs:     make(map[string]error),
		nextID:   1000,
	}
}

func (m *MockChatAPI) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	block := m.Block
	err := m.Errs[method]
	m.mu.Unlock()

	if block != nil {
		if err := block(ctx, method); err != nil {
			return err
		}
	}
	return err
}

// Calls returns the method names called so far, in order
func (m *MockChatAPI) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns how many times method was called
func (m *MockChatAPI) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Queries returns the conversation queries received
func (m *MockChatAPI) Queries() []ConversationQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queries)
}

// BatchDeletedMessages returns the id lists of each batch message delete
func (m *MockChatAPI) BatchDeletedMessages() [][]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.batchDeletedMessages)
}

// BatchDeletedConversations returns the id lists of each batch conversation delete
func (m *MockChatAPI) BatchDeletedConversations() [][]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.batchDeletedConvs)
}

func (m *MockChatAPI) newID() int64 {
	m.nextID++
	return m.nextID
}

func (m *MockChatAPI) ListConversations(ctx context.Context, query ConversationQuery) ([]models.Conversation, error) {
	if err := m.enter(ctx, "ListConversations"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)

	var out []models.Conversation
	for _, c := range m.Conversations {
		if !query.Folder.Matches(c) {
			continue
		}
		if query.Keyword != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(query.Keyword)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MockChatAPI) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	if err := m.enter(ctx, "CreateConversation"); err != nil {
		return models.Conversation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	conv.ID = m.newID()
	m.Conversations = append(m.Conversations, conv)
	return conv, nil
}

func (m *MockChatAPI) DeleteConversation(ctx context.Context, id int64) error {
	if err := m.enter(ctx, "DeleteConversation"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeConversations(id)
	return nil
}

func (m *MockChatAPI) BatchDeleteConversations(ctx context.Context, ids []int64) error {
	if err := m.enter(ctx, "BatchDeleteConversations"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchDeletedConvs = append(m.batchDeletedConvs, slices.Clone(ids))
	m.removeConversations(ids...)
	return nil
}

func (m *MockChatAPI) removeConversations(ids ...int64) {
	m.Conversations = slices.DeleteFunc(m.Conversations, func(c models.Conversation) bool {
		return slices.Contains(ids, c.ID)
	})
	for _, id := range ids {
		delete(m.Messages, id)
	}
}

func (m *MockChatAPI) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	if err := m.enter(ctx, "ListMessages"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Messages[conversationID]), nil
}

func (m *MockChatAPI) DeleteMessage(ctx context.Context, id int64) error {
	if err := m.enter(ctx, "DeleteMessage"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeMessages(id)
	return nil
}

func (m *MockChatAPI) BatchDeleteMessages(ctx context.Context, ids []int64) error {
	if err := m.enter(ctx, "BatchDeleteMessages"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchDeletedMessages = append(m.batchDeletedMessages, slices.Clone(ids))
	m.removeMessages(ids...)
	return nil
}

func (m *MockChatAPI) removeMessages(ids ...int64) {
	for convID, msgs := range m.Messages {
		m.Messages[convID] = slices.DeleteFunc(msgs, func(msg models.Message) bool {
			id, ok := msg.ID.Server()
			return ok && slices.Contains(ids, id)
		})
	}
}

func (m *MockChatAPI) ListTemplates(ctx context.Context) ([]models.PromptTemplate, error) {
	if err := m.enter(ctx, "ListTemplates"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Templates), nil
}

func (m *MockChatAPI) CreateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error) {
	if err := m.enter(ctx, "CreateTemplate"); err != nil {
		return models.PromptTemplate{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tmpl.ID = m.newID()
	m.Templates = append(m.Templates, tmpl)
	return tmpl, nil
}

func (m *MockChatAPI) UpdateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error) {
	if err := m.enter(ctx, "UpdateTemplate"); err != nil {
		return models.PromptTemplate{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Templates {
		if m.Templates[i].ID == tmpl.ID {
			m.Templates[i] = tmpl
			return tmpl, nil
		}
	}
	return models.PromptTemplate{}, apierrors.NewAPIError(404, models.PathTemplates, "template not found")
}

func (m *MockChatAPI) DeleteTemplate(ctx context.Context, id int64) error {
	if err := m.enter(ctx, "DeleteTemplate"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Templates = slices.DeleteFunc(m.Templates, func(t models.PromptTemplate) bool { return t.ID == id })
	return nil
}

func (m *MockChatAPI) ListFolders(ctx context.Context) ([]models.Folder, error) {
	if err := m.enter(ctx, "ListFolders"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Folders), nil
}

func (m *MockChatAPI) CreateFolder(ctx context.Context, folder models.Folder) (models.Folder, error) {
	if err := m.enter(ctx, "CreateFolder"); err != nil {
		return models.Folder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	folder.ID = m.newID()
	m.Folders = append(m.Folders, folder)
	return folder, nil
}

func (m *MockChatAPI) UpdateFolder(ctx context.Context, folder models.Folder) (models.Folder, error) {
	if err := m.enter(ctx, "UpdateFolder"); err != nil {
		return models.Folder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Folders {
		if m.Folders[i].ID == folder.ID {
			m.Folders[i] = folder
			return folder, nil
		}
	}
	return models.Folder{}, apierrors.NewAPIError(404, models.PathFolders, "folder not found")
}

func (m *MockChatAPI) DeleteFolder(ctx context.Context, id int64) error {
	if err := m.enter(ctx, "DeleteFolder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Folders = slices.DeleteFunc(m.Folders, func(f models.Folder) bool { return f.ID == id })
	for i := range m.Conversations {
		if fid := m.Conversations[i].FolderID; fid != nil && *fid == id {
			m.Conversations[i].FolderID = nil
		}
	}
	return nil
}

func (m *MockChatAPI) AddConversationsToFolder(ctx context.Context, folderID int64, conversationIDs []int64) error {
	if err := m.enter(ctx, "AddConversationsToFolder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Conversations {
		if slices.Contains(conversationIDs, m.Conversations[i].ID) {
			fid := folderID
			m.Conversations[i].FolderID = &fid
		}
	}
	return nil
}

func (m *MockChatAPI) RemoveConversationFromFolder(ctx context.Context, conversationID int64) error {
	if err := m.enter(ctx, "RemoveConversationFromFolder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Conversations {
		if m.Conversations[i].ID == conversationID {
			m.Conversations[i].FolderID = nil
		}
	}
	return nil
}

// MockStreamer replays scripted events through the same dispatch logic as
// StreamClient, without any transport.
type MockStreamer struct {
	// Events are dispatched in order on every send
	Events []Event
	// Hold, when set, keeps the stream open after Events until it is
	// closed or the stream is stopped
	Hold chan struct{}
	// Err is returned after the events have been dispatched
	Err error
	// OnSend, when set, replaces Events for a send
	OnSend func(req StreamRequest) []Event

	streaming atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelCauseFunc
	requests  []StreamRequest
}

var _ Streamer = (*MockStreamer)(nil)

// Requests returns the requests sent so far
func (m *MockStreamer) Requests() []StreamRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

func (m *MockStreamer) IsStreaming() bool {
	return m.streaming.Load()
}

func (m *MockStreamer) StopStreaming() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel(errStopRequested)
	}
}

func (m *MockStreamer) SendStreamMessage(ctx context.Context, req StreamRequest, onUpdate func(models.Message), onConversationCreated func(int64)) error {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return apierrors.ErrEmptyMessage
	}
	if !m.streaming.CompareAndSwap(false, true) {
		return apierrors.ErrStreamActive
	}
	defer m.streaming.Store(false)

	ctx, cancel := context.WithCancelCause(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.requests = append(m.requests, req)
	events := m.Events
	if m.OnSend != nil {
		events = m.OnSend(req)
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
		cancel(nil)
	}()

	if onUpdate == nil {
		onUpdate = func(models.Message) {}
	}
	if onConversationCreated == nil {
		onConversationCreated = func(int64) {}
	}
	ex := &exchange{
		req:                   req,
		onUpdate:              onUpdate,
		onConversationCreated: onConversationCreated,
		logger:                slog.Default(),
	}
	if req.ConversationID != nil {
		ex.conversationID = *req.ConversationID
	}
	defer ex.settle()

	for _, ev := range events {
		if ctx.Err() != nil {
			return mockCause(ctx)
		}
		if err := ex.handle(ev); err != nil {
			return err
		}
		if ex.done {
			break
		}
	}

	if m.Hold != nil {
		select {
		case <-m.Hold:
		case <-ctx.Done():
			return mockCause(ctx)
		}
	}
	return m.Err
}

func mockCause(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), errStopRequested) {
		return nil
	}
	return ctx.Err()
}
