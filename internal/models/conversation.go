package models

import (
	"strconv"
	"time"
)

// Conversation is the server-side record of a chat thread.
// ID is zero until the server has assigned one.
type Conversation struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	ModelName    string    `json:"modelName"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Tags         []string  `json:"tags"`
	FolderID     *int64    `json:"folderId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsPersisted reports whether the server has assigned an id
func (c Conversation) IsPersisted() bool {
	return c.ID > 0
}

// IsUnfiled reports whether the conversation belongs to no folder
func (c Conversation) IsUnfiled() bool {
	return c.FolderID == nil
}

// Folder groups conversations
type Folder struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

type folderFilterKind int

const (
	folderFilterAll folderFilterKind = iota
	folderFilterUnfiled
	folderFilterFolder
)

// FolderFilter selects conversations by folder. The zero value matches
// every conversation; Unfiled matches only conversations without a folder.
type FolderFilter struct {
	kind folderFilterKind
	id   int64
}

// AllFolders disables folder filtering
func AllFolders() FolderFilter {
	return FolderFilter{kind: folderFilterAll}
}

// Unfiled selects conversations whose folder is explicitly null
func Unfiled() FolderFilter {
	return FolderFilter{kind: folderFilterUnfiled}
}

// InFolder selects conversations of a single folder
func InFolder(id int64) FolderFilter {
	return FolderFilter{kind: folderFilterFolder, id: id}
}

// IsAll reports whether the filter matches every conversation
func (f FolderFilter) IsAll() bool {
	return f.kind == folderFilterAll
}

// IsUnfiled reports whether the filter selects unfiled conversations
func (f FolderFilter) IsUnfiled() bool {
	return f.kind == folderFilterUnfiled
}

// FolderID returns the folder id and whether the filter targets a folder
func (f FolderFilter) FolderID() (int64, bool) {
	return f.id, f.kind == folderFilterFolder
}

// QueryValue returns the folderId query value and whether it should be sent
func (f FolderFilter) QueryValue() (string, bool) {
	switch f.kind {
	case folderFilterUnfiled:
		return QueryFolderUnfiled, true
	case folderFilterFolder:
		return strconv.FormatInt(f.id, 10), true
	default:
		return "", false
	}
}

// Matches reports whether c passes the filter
func (f FolderFilter) Matches(c Conversation) bool {
	switch f.kind {
	case folderFilterUnfiled:
		return c.FolderID == nil
	case folderFilterFolder:
		return c.FolderID != nil && *c.FolderID == f.id
	default:
		return true
	}
}

func (f FolderFilter) String() string {
	switch f.kind {
	case folderFilterUnfiled:
		return "unfiled"
	case folderFilterFolder:
		return "folder " + strconv.FormatInt(f.id, 10)
	default:
		return "all"
	}
}

// ParseFolderFilter parses "", "all", "none"/"null"/"unfiled" or a folder id
func ParseFolderFilter(s string) (FolderFilter, error) {
	switch s {
	case "", "all":
		return AllFolders(), nil
	case "none", "null", "unfiled":
		return Unfiled(), nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return FolderFilter{}, &strconv.NumError{Func: "ParseFolderFilter", Num: s, Err: strconv.ErrSyntax}
	}
	return InFolder(id), nil
}
