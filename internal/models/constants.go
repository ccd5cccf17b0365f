// Package models contains data types and constants for the chat backend API.
package models

// REST and streaming paths, relative to the configured base URL
const (
	PathConversations         = "/conversations"
	PathConversationsBatchDel = "/conversations/batch-delete"
	PathMessages              = "/messages"
	PathMessagesBatchDel      = "/messages/batch-delete"
	PathTemplates             = "/templates"
	PathFolders               = "/folders"
	PathChatStream            = "/chat/stream"
	QueryKeyword              = "keyword"
	QueryFolderID             = "folderId"
	QueryFolderUnfiled        = "null"
	StreamDataPrefix          = "data: "
	StreamTerminator          = "[DONE]"
	SettingsStorageKey        = "chat_settings"
	DefaultHistoryLimit       = 10
	DefaultModelName          = "gpt-4o-mini"
	MaxErrorBodyBytes         = 4096
)

// DefaultHeaders returns the headers sent with every REST request
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
		"User-Agent":   "chatsync/0.1",
	}
}

// StreamHeaders returns the headers sent with the chat stream request
func StreamHeaders() map[string]string {
	return map[string]string{
		"Accept":        "text/event-stream",
		"Content-Type":  "application/json",
		"Cache-Control": "no-cache",
		"User-Agent":    "chatsync/0.1",
	}
}

// AvailableModels returns the model names offered by the backend
func AvailableModels() []string {
	return []string{
		"gpt-4o-mini",
		"gpt-4o",
		"deepseek-chat",
		"qwen-plus",
	}
}
