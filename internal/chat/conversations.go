package chat

import (
	"context"
	"slices"

	"github.com/diogo/chatsync/internal/api"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/pending"
)

// LoadConversations replaces the conversation list with the server's,
// filtered by the search keyword and folder selection. A call made while
// another load is in flight is a no-op.
func (s *Store) LoadConversations(ctx context.Context) error {
	release, ok := s.pending.TryAcquire(pending.KeySyncConversations)
	if !ok {
		s.logger.Debug("conversation load already in flight")
		return nil
	}
	defer release()

	s.mu.RLock()
	query := api.ConversationQuery{Keyword: s.keyword, Folder: s.folderFilter}
	s.mu.RUnlock()

	convs, err := s.api.ListConversations(ctx, query)
	if err != nil {
		return s.fail("load conversations", err)
	}

	s.mu.Lock()
	s.conversations = convs
	// Pick up server-side title and folder changes of the open conversation
	if s.current != nil && s.current.ID > 0 {
		if i := indexConversation(convs, s.current.ID); i >= 0 {
			*s.current = convs[i]
		}
	}
	s.mu.Unlock()

	s.emit(ChangeConversations)
	return nil
}

// SelectConversation makes conv current and loads its messages
func (s *Store) SelectConversation(ctx context.Context, conv models.Conversation) error {
	s.mu.Lock()
	selected := conv
	s.current = &selected
	s.messages = nil
	s.epoch++
	s.mu.Unlock()

	s.emit(ChangeState, ChangeMessages)
	return s.LoadMessages(ctx, conv.ID)
}

// CreateNewConversation starts a draft conversation. Nothing is sent to
// the server; the id is assigned by the first send.
func (s *Store) CreateNewConversation() {
	s.mu.Lock()
	s.current = s.newDraftLocked()
	s.messages = nil
	s.epoch++
	s.mu.Unlock()

	s.emit(ChangeState, ChangeMessages)
}

func (s *Store) newDraftLocked() *models.Conversation {
	draft := &models.Conversation{ModelName: s.selectedModel}
	if s.selectedTemplate != nil {
		draft.SystemPrompt = s.selectedTemplate.Content
	}
	return draft
}

// DeleteConversation deletes a conversation and reloads the list. If it
// was current, the current conversation is cleared.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	if err := s.api.DeleteConversation(ctx, id); err != nil {
		return s.fail("delete conversation", err)
	}

	s.forgetConversations(id)
	return s.LoadConversations(ctx)
}

// BatchDeleteConversations deletes ids in one request. A call made while
// another batch delete is in flight is a no-op.
func (s *Store) BatchDeleteConversations(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	release, ok := s.pending.TryAcquire(pending.KeyBatchDeleteConversations)
	if !ok {
		s.logger.Debug("batch delete already in flight")
		return nil
	}
	defer release()

	if err := s.api.BatchDeleteConversations(ctx, ids); err != nil {
		return s.fail("delete conversations", err)
	}

	s.forgetConversations(ids...)
	s.notifier.Notify(LevelSuccess, pluralize(len(ids), "conversation")+" deleted")
	return s.LoadConversations(ctx)
}

func (s *Store) forgetConversations(ids ...int64) {
	s.mu.Lock()
	s.conversations = slices.DeleteFunc(s.conversations, func(c models.Conversation) bool {
		return slices.Contains(ids, c.ID)
	})
	clearedCurrent := s.current != nil && slices.Contains(ids, s.current.ID)
	if clearedCurrent {
		s.current = nil
		s.messages = nil
		s.epoch++
	}
	s.mu.Unlock()

	if clearedCurrent {
		s.emit(ChangeState, ChangeMessages)
	}
	s.emit(ChangeConversations)
}

func indexConversation(convs []models.Conversation, id int64) int {
	return slices.IndexFunc(convs, func(c models.Conversation) bool { return c.ID == id })
}
