package chat

import (
	"context"
	"slices"
	"strings"

	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/pending"
)

// Templates returns the loaded prompt templates
func (s *Store) Templates() []models.PromptTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.templates)
}

// SelectedTemplate returns the template applied to new conversations, if any
func (s *Store) SelectedTemplate() (models.PromptTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedTemplate == nil {
		return models.PromptTemplate{}, false
	}
	return *s.selectedTemplate, true
}

// LoadTemplates replaces the template list with the server's
func (s *Store) LoadTemplates(ctx context.Context) error {
	release, ok := s.pending.TryAcquire(pending.KeySyncTemplates)
	if !ok {
		s.logger.Debug("template load already in flight")
		return nil
	}
	defer release()

	tmpls, err := s.api.ListTemplates(ctx)
	if err != nil {
		return s.fail("load templates", err)
	}

	s.mu.Lock()
	s.templates = tmpls
	s.mu.Unlock()

	s.emit(ChangeTemplates)
	return nil
}

// CreateTemplate creates a template and reloads the list
func (s *Store) CreateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error) {
	tmpl.Name = strings.TrimSpace(tmpl.Name)
	created, err := s.api.CreateTemplate(ctx, tmpl)
	if err != nil {
		return models.PromptTemplate{}, s.fail("create template", err)
	}
	return created, s.LoadTemplates(ctx)
}

// UpdateTemplate saves tmpl and reloads the list. A selected template with
// the same id picks up the new content.
func (s *Store) UpdateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error) {
	updated, err := s.api.UpdateTemplate(ctx, tmpl)
	if err != nil {
		return models.PromptTemplate{}, s.fail("update template", err)
	}

	s.mu.Lock()
	refreshed := s.selectedTemplate != nil && s.selectedTemplate.ID == updated.ID
	if refreshed {
		t := updated
		s.selectedTemplate = &t
	}
	s.mu.Unlock()

	if refreshed {
		s.emit(ChangeSettings)
	}
	return updated, s.LoadTemplates(ctx)
}

// DeleteTemplate deletes a template and reloads the list. Deleting the
// selected template clears the selection.
func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	if err := s.api.DeleteTemplate(ctx, id); err != nil {
		return s.fail("delete template", err)
	}

	s.mu.Lock()
	cleared := s.selectedTemplate != nil && s.selectedTemplate.ID == id
	if cleared {
		s.selectedTemplate = nil
	}
	s.mu.Unlock()

	if cleared {
		s.emit(ChangeSettings)
	}
	return s.LoadTemplates(ctx)
}

// SelectTemplate sets the template whose content becomes the system prompt
// of new conversations; nil clears it. A draft with no messages yet adopts
// the new prompt immediately.
func (s *Store) SelectTemplate(tmpl *models.PromptTemplate) {
	s.mu.Lock()
	s.selectedTemplate = nil
	prompt := ""
	if tmpl != nil {
		t := *tmpl
		s.selectedTemplate = &t
		prompt = t.Content
	}
	if s.current != nil && s.current.ID == 0 && len(s.messages) == 0 {
		s.current.SystemPrompt = prompt
	}
	s.mu.Unlock()

	s.emit(ChangeSettings, ChangeState)
}
