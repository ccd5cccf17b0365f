package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/pending"
)

// DefaultFolderColor is used when a folder is created without a colour
const DefaultFolderColor = "#1890ff"

// Folders returns the loaded folders
func (s *Store) Folders() []models.Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.folders)
}

// LoadFolders replaces the folder list with the server's
func (s *Store) LoadFolders(ctx context.Context) error {
	release, ok := s.pending.TryAcquire(pending.KeySyncFolders)
	if !ok {
		s.logger.Debug("folder load already in flight")
		return nil
	}
	defer release()

	folders, err := s.api.ListFolders(ctx)
	if err != nil {
		return s.fail("load folders", err)
	}

	s.mu.Lock()
	s.folders = folders
	s.mu.Unlock()

	s.emit(ChangeFolders)
	return nil
}

// CreateFolder creates a folder and reloads the list
func (s *Store) CreateFolder(ctx context.Context, name, color string) (models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Folder{}, fmt.Errorf("folder name cannot be empty")
	}
	if color == "" {
		color = DefaultFolderColor
	}

	created, err := s.api.CreateFolder(ctx, models.Folder{Name: name, Color: color})
	if err != nil {
		return models.Folder{}, s.fail("create folder", err)
	}
	return created, s.LoadFolders(ctx)
}

// RenameFolder changes a folder's name, keeping its colour
func (s *Store) RenameFolder(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("folder name cannot be empty")
	}

	s.mu.RLock()
	i := slices.IndexFunc(s.folders, func(f models.Folder) bool { return f.ID == id })
	folder := models.Folder{ID: id, Color: DefaultFolderColor}
	if i >= 0 {
		folder = s.folders[i]
	}
	s.mu.RUnlock()

	folder.Name = name
	if _, err := s.api.UpdateFolder(ctx, folder); err != nil {
		return s.fail("rename folder", err)
	}
	return s.LoadFolders(ctx)
}

// DeleteFolder deletes a folder. Its conversations become unfiled, and a
// filter on the deleted folder falls back to all folders.
func (s *Store) DeleteFolder(ctx context.Context, id int64) error {
	if err := s.api.DeleteFolder(ctx, id); err != nil {
		return s.fail("delete folder", err)
	}

	s.mu.Lock()
	reset := false
	if fid, ok := s.folderFilter.FolderID(); ok && fid == id {
		s.folderFilter = models.AllFolders()
		reset = true
	}
	s.mu.Unlock()

	if reset {
		s.emit(ChangeState)
	}
	if err := s.LoadFolders(ctx); err != nil {
		return err
	}
	return s.LoadConversations(ctx)
}

// MoveConversationToFolder files a conversation into folderID, or unfiles
// it when folderID is nil. The two directions use different endpoints.
func (s *Store) MoveConversationToFolder(ctx context.Context, conversationID int64, folderID *int64) error {
	var err error
	if folderID == nil {
		err = s.api.RemoveConversationFromFolder(ctx, conversationID)
	} else {
		err = s.api.AddConversationsToFolder(ctx, *folderID, []int64{conversationID})
	}
	if err != nil {
		return s.fail("move conversation", err)
	}
	return s.LoadConversations(ctx)
}
