package chat

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/diogo/chatsync/internal/api"
	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/pending"
)

// LoadMessages replaces the message list with the server's copy for
// conversationID. Conversations without a server id are skipped.
func (s *Store) LoadMessages(ctx context.Context, conversationID int64) error {
	if conversationID <= 0 {
		s.logger.Warn("skipping message load for unsaved conversation", "conversation", conversationID)
		return nil
	}

	release, ok := s.pending.TryAcquire(pending.SyncMessagesKey(conversationID))
	if !ok {
		s.logger.Debug("message load already in flight", "conversation", conversationID)
		return nil
	}
	defer release()

	msgs, err := s.api.ListMessages(ctx, conversationID)
	if err != nil {
		return s.fail("load messages", err)
	}

	s.mu.Lock()
	// The user may have moved on while the request was in flight
	stale := s.current == nil || s.current.ID != conversationID
	if !stale {
		s.messages = msgs
	}
	s.mu.Unlock()

	if stale {
		s.logger.Debug("dropping messages of a conversation no longer open", "conversation", conversationID)
		return nil
	}
	s.emit(ChangeMessages)
	return nil
}

// SendMessage sends text in the current conversation, starting a new one
// when none is open, and merges the streamed reply as it arrives. It is
// refused with ErrBusy while another send or stream is in progress.
// The conversation list is reloaded afterwards whatever the outcome.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apierrors.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.loading || s.streamer.IsStreaming() {
		s.mu.Unlock()
		return apierrors.ErrBusy
	}
	s.loading = true
	s.lastError = ""

	if s.current == nil {
		s.current = s.newDraftLocked()
		s.epoch++
	}
	epoch := s.epoch

	req := api.StreamRequest{
		Message:      text,
		Model:        s.selectedModel,
		SystemPrompt: s.current.SystemPrompt,
		HistoryLimit: s.historyLimit,
	}
	if s.current.ID > 0 {
		id := s.current.ID
		req.ConversationID = &id
	}
	if req.Model == "" {
		req.Model = models.DefaultModelName
	}
	if req.SystemPrompt == "" && s.selectedTemplate != nil {
		req.SystemPrompt = s.selectedTemplate.Content
	}

	// Shown immediately; replaced by the server copy from the init event
	s.messages = append(s.messages, models.Message{
		ID:             models.NewPendingID(),
		ConversationID: s.current.ID,
		Role:           models.RoleUser,
		Content:        text,
		CreatedAt:      time.Now(),
	})
	s.mu.Unlock()
	s.emit(ChangeState, ChangeMessages)

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		s.emit(ChangeState)
	}()

	err := s.streamer.SendStreamMessage(ctx, req,
		func(msg models.Message) { s.mergeMessage(epoch, msg) },
		func(id int64) { s.conversationCreated(epoch, id) },
	)

	s.settleStreaming()

	if reloadErr := s.LoadConversations(ctx); reloadErr != nil && err == nil {
		s.logger.Warn("conversation reload after send failed", "error", reloadErr)
	}

	if err != nil {
		if apierrors.IsAborted(err) {
			return nil
		}
		return s.fail("send message", err)
	}
	return nil
}

// StopStreaming aborts the reply being streamed. Already merged content stays.
func (s *Store) StopStreaming() {
	s.streamer.StopStreaming()
}

// mergeMessage applies one streamed message to the list. A user message
// replaces the latest user entry with identical content; an assistant
// message replaces the entry of the same conversation that has the same
// id or is still streaming. Anything unmatched is appended.
func (s *Store) mergeMessage(epoch uint64, msg models.Message) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("dropping update for a conversation no longer open")
		return
	}

	idx := -1
	switch msg.Role {
	case models.RoleUser:
		idx = lastIndex(s.messages, func(m models.Message) bool {
			return m.Role == models.RoleUser && m.Content == msg.Content
		})
	case models.RoleAssistant:
		idx = lastIndex(s.messages, func(m models.Message) bool {
			if m.Role != models.RoleAssistant {
				return false
			}
			// A placeholder created before init carries no conversation id yet
			sameConv := m.ConversationID == msg.ConversationID || m.ConversationID == 0
			return sameConv && (m.ID == msg.ID || m.IsStreaming)
		})
	}

	if idx >= 0 {
		s.messages[idx] = msg
	} else {
		s.messages = append(s.messages, msg)
	}
	s.mu.Unlock()

	s.emit(ChangeMessages)
}

// conversationCreated adopts the id the server assigned to the draft
func (s *Store) conversationCreated(epoch uint64, id int64) {
	s.mu.Lock()
	if s.epoch != epoch || s.current == nil || s.current.ID != 0 {
		s.mu.Unlock()
		return
	}
	s.current.ID = id
	for i := range s.messages {
		if s.messages[i].ConversationID == 0 {
			s.messages[i].ConversationID = id
		}
	}
	s.mu.Unlock()

	s.logger.Info("conversation created", "conversation", id)
	s.emit(ChangeState)
}

// settleStreaming clears any streaming flag left behind by an interrupted send
func (s *Store) settleStreaming() {
	s.mu.Lock()
	changed := false
	for i := range s.messages {
		if s.messages[i].IsStreaming {
			s.messages[i].IsStreaming = false
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.emit(ChangeMessages)
	}
}

// DeleteMessage deletes one message
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	if err := s.api.DeleteMessage(ctx, id); err != nil {
		return s.fail("delete message", err)
	}
	s.removeMessages(id)
	return nil
}

// BatchDeleteMessages deletes ids with a single request
func (s *Store) BatchDeleteMessages(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.api.BatchDeleteMessages(ctx, ids); err != nil {
		return s.fail("delete messages", err)
	}
	s.removeMessages(ids...)
	return nil
}

func (s *Store) removeMessages(ids ...int64) {
	s.mu.Lock()
	s.messages = slices.DeleteFunc(s.messages, func(m models.Message) bool {
		id, ok := m.ID.Server()
		return ok && slices.Contains(ids, id)
	})
	s.mu.Unlock()
	s.emit(ChangeMessages)
}

// RegenerateLastResponse resends the last user message. When the last
// assistant reply is newer than that message it is deleted first.
func (s *Store) RegenerateLastResponse(ctx context.Context) error {
	s.mu.RLock()
	busy := s.loading || s.streamer.IsStreaming()
	userIdx := lastIndex(s.messages, func(m models.Message) bool { return m.Role == models.RoleUser })
	assistantIdx := lastIndex(s.messages, func(m models.Message) bool { return m.Role == models.RoleAssistant })
	var user, reply models.Message
	if userIdx >= 0 {
		user = s.messages[userIdx]
	}
	if assistantIdx >= 0 {
		reply = s.messages[assistantIdx]
	}
	s.mu.RUnlock()

	if busy {
		return apierrors.ErrBusy
	}
	if userIdx < 0 {
		return apierrors.ErrNothingToRetry
	}

	if assistantIdx >= 0 && reply.NewerThan(user) {
		if id, ok := reply.ID.Server(); ok {
			if err := s.DeleteMessage(ctx, id); err != nil {
				return err
			}
		} else {
			s.dropMessage(reply.ID)
		}
	}

	return s.SendMessage(ctx, user.Content)
}

// dropMessage removes a message that only exists locally
func (s *Store) dropMessage(id models.MessageID) {
	s.mu.Lock()
	s.messages = slices.DeleteFunc(s.messages, func(m models.Message) bool { return m.ID == id })
	s.mu.Unlock()
	s.emit(ChangeMessages)
}

func lastIndex(msgs []models.Message, match func(models.Message) bool) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if match(msgs[i]) {
			return i
		}
	}
	return -1
}
