package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/diogo/chatsync/internal/models"
)

// ExportFormat represents the format for exporting conversations
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
	ExportFormatYAML     ExportFormat = "yaml"
)

// ParseExportFormat accepts a format name or a file extension
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "md", "markdown":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	case "yaml", "yml":
		return ExportFormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (use markdown, json or yaml)", s)
	}
}

type exportMessage struct {
	ID         string    `json:"id" yaml:"id"`
	Role       string    `json:"role" yaml:"role"`
	Content    string    `json:"content" yaml:"content"`
	TokensUsed *int      `json:"tokens_used,omitempty" yaml:"tokens_used,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

type exportConversation struct {
	ID           int64           `json:"id" yaml:"id"`
	Title        string          `json:"title" yaml:"title"`
	Model        string          `json:"model" yaml:"model"`
	SystemPrompt string          `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	FolderID     *int64          `json:"folder_id" yaml:"folder_id"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" yaml:"updated_at"`
	Messages     []exportMessage `json:"messages" yaml:"messages"`
}

// Export renders a conversation and its messages in format
func Export(conv models.Conversation, msgs []models.Message, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatMarkdown, "":
		return []byte(exportMarkdown(conv, msgs)), nil
	case ExportFormatJSON:
		return json.MarshalIndent(newExport(conv, msgs), "", "  ")
	case ExportFormatYAML:
		return yaml.Marshal(newExport(conv, msgs))
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func newExport(conv models.Conversation, msgs []models.Message) exportConversation {
	export := exportConversation{
		ID:           conv.ID,
		Title:        conv.Title,
		Model:        conv.ModelName,
		SystemPrompt: conv.SystemPrompt,
		FolderID:     conv.FolderID,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		Messages:     make([]exportMessage, len(msgs)),
	}
	for i, msg := range msgs {
		export.Messages[i] = exportMessage{
			ID:         msg.ID.String(),
			Role:       string(msg.Role),
			Content:    msg.Content,
			TokensUsed: msg.TokensUsed,
			CreatedAt:  msg.CreatedAt,
		}
	}
	return export
}

func exportMarkdown(conv models.Conversation, msgs []models.Message) string {
	var sb strings.Builder

	title := conv.Title
	if title == "" {
		title = "Untitled conversation"
	}
	sb.WriteString("# ")
	sb.WriteString(title)
	sb.WriteString("\n\n")

	sb.WriteString("**Model:** ")
	sb.WriteString(conv.ModelName)
	sb.WriteString("\n")
	if !conv.CreatedAt.IsZero() {
		sb.WriteString("**Created:** ")
		sb.WriteString(conv.CreatedAt.Format("2006-01-02 15:04:05"))
		sb.WriteString("\n")
	}
	if !conv.UpdatedAt.IsZero() {
		sb.WriteString("**Updated:** ")
		sb.WriteString(conv.UpdatedAt.Format("2006-01-02 15:04:05"))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("**Messages:** %d\n", len(msgs)))
	if conv.SystemPrompt != "" {
		sb.WriteString("\n> ")
		sb.WriteString(strings.ReplaceAll(conv.SystemPrompt, "\n", "\n> "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n---\n\n")

	for i, msg := range msgs {
		sb.WriteString("## ")
		sb.WriteString(roleTitle(msg.Role))
		if !msg.CreatedAt.IsZero() {
			sb.WriteString(" (")
			sb.WriteString(msg.CreatedAt.Format("15:04:05"))
			sb.WriteString(")")
		}
		sb.WriteString("\n\n")

		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if i < len(msgs)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

func roleTitle(r models.Role) string {
	switch r {
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	default:
		return "User"
	}
}
