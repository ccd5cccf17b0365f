package models

import "time"

// PromptTemplate is a reusable system prompt. Its content is copied into the
// request when a message is sent; later edits do not affect past sends.
type PromptTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	IsFavorite  bool      `json:"isFavorite"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PersistedSettings is the durable subset of the client state
type PersistedSettings struct {
	SelectedModel    string          `json:"selectedModel"`
	SelectedTemplate *PromptTemplate `json:"selectedTemplate"`
	HistoryLimit     int             `json:"historyLimit"`
	LastSyncTime     time.Time       `json:"lastSyncTime"`
}

// DefaultSettings returns the settings used when nothing has been persisted
func DefaultSettings() PersistedSettings {
	return PersistedSettings{
		SelectedModel: DefaultModelName,
		HistoryLimit:  DefaultHistoryLimit,
	}
}
