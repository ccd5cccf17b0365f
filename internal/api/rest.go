package api

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	http "github.com/bogdanfinn/fhttp"

	"github.com/diogo/chatsync/internal/models"
)

// ChatAPI is the REST surface used by the conversation store
type ChatAPI interface {
	ListConversations(ctx context.Context, query ConversationQuery) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	BatchDeleteConversations(ctx context.Context, ids []int64) error

	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	BatchDeleteMessages(ctx context.Context, ids []int64) error

	ListTemplates(ctx context.Context) ([]models.PromptTemplate, error)
	CreateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error)
	UpdateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error)
	DeleteTemplate(ctx context.Context, id int64) error

	ListFolders(ctx context.Context) ([]models.Folder, error)
	CreateFolder(ctx context.Context, folder models.Folder) (models.Folder, error)
	UpdateFolder(ctx context.Context, folder models.Folder) (models.Folder, error)
	DeleteFolder(ctx context.Context, id int64) error
	AddConversationsToFolder(ctx context.Context, folderID int64, conversationIDs []int64) error
	RemoveConversationFromFolder(ctx context.Context, conversationID int64) error
}

var _ ChatAPI = (*Client)(nil)

// ConversationQuery filters the conversation list
type ConversationQuery struct {
	Keyword string
	Folder  models.FolderFilter
}

// Values encodes the query. The unfiled filter is sent as folderId=null,
// which the backend distinguishes from an absent folderId.
func (q ConversationQuery) Values() url.Values {
	values := url.Values{}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		values.Set(models.QueryKeyword, kw)
	}
	if v, ok := q.Folder.QueryValue(); ok {
		values.Set(models.QueryFolderID, v)
	}
	return values
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type folderConversationsRequest struct {
	ConversationIDs []int64 `json:"conversationIds"`
}

func idPath(base string, id int64) string {
	return base + "/" + strconv.FormatInt(id, 10)
}

// ListConversations fetches the conversation list matching query
func (c *Client) ListConversations(ctx context.Context, query ConversationQuery) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := c.doJSON(ctx, http.MethodGet, models.PathConversations, query.Values(), nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// CreateConversation creates an empty conversation on the server
func (c *Client) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	var created models.Conversation
	err := c.doJSON(ctx, http.MethodPost, models.PathConversations, nil, conv, &created)
	return created, err
}

// DeleteConversation deletes one conversation
func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, idPath(models.PathConversations, id), nil, nil, nil)
}

// BatchDeleteConversations deletes all ids in a single request
func (c *Client) BatchDeleteConversations(ctx context.Context, ids []int64) error {
	return c.doJSON(ctx, http.MethodPost, models.PathConversationsBatchDel, nil, idsRequest{IDs: ids}, nil)
}

// ListMessages fetches the messages of a conversation in creation order
func (c *Client) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	var msgs []models.Message
	path := idPath(models.PathConversations, conversationID) + models.PathMessages
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteMessage deletes one message
func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, idPath(models.PathMessages, id), nil, nil, nil)
}

// BatchDeleteMessages deletes all ids in a single request
func (c *Client) BatchDeleteMessages(ctx context.Context, ids []int64) error {
	return c.doJSON(ctx, http.MethodPost, models.PathMessagesBatchDel, nil, idsRequest{IDs: ids}, nil)
}

// ListTemplates fetches all prompt templates
func (c *Client) ListTemplates(ctx context.Context) ([]models.PromptTemplate, error) {
	var tmpls []models.PromptTemplate
	if err := c.doJSON(ctx, http.MethodGet, models.PathTemplates, nil, nil, &tmpls); err != nil {
		return nil, err
	}
	return tmpls, nil
}

// CreateTemplate creates a prompt template
func (c *Client) CreateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error) {
	var created models.PromptTemplate
	err := c.doJSON(ctx, http.MethodPost, models.PathTemplates, nil, tmpl, &created)
	return created, err
}

// UpdateTemplate replaces a prompt template
func (c *Client) UpdateTemplate(ctx context.Context, tmpl models.PromptTemplate) (models.PromptTemplate, error) {
	var updated models.PromptTemplate
	err := c.doJSON(ctx, http.MethodPut, idPath(models.PathTemplates, tmpl.ID), nil, tmpl, &updated)
	return updated, err
}

// DeleteTemplate deletes a prompt template
func (c *Client) DeleteTemplate(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, idPath(models.PathTemplates, id), nil, nil, nil)
}

// ListFolders fetches all folders
func (c *Client) ListFolders(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	if err := c.doJSON(ctx, http.MethodGet, models.PathFolders, nil, nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// CreateFolder creates a folder
func (c *Client) CreateFolder(ctx context.Context, folder models.Folder) (models.Folder, error) {
	var created models.Folder
	err := c.doJSON(ctx, http.MethodPost, models.PathFolders, nil, folder, &created)
	return created, err
}

// UpdateFolder replaces a folder's name, color and description
func (c *Client) UpdateFolder(ctx context.Context, folder models.Folder) (models.Folder, error) {
	var updated models.Folder
	err := c.doJSON(ctx, http.MethodPut, idPath(models.PathFolders, folder.ID), nil, folder, &updated)
	return updated, err
}

// DeleteFolder deletes a folder; its conversations become unfiled
func (c *Client) DeleteFolder(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, idPath(models.PathFolders, id), nil, nil, nil)
}

// AddConversationsToFolder files conversations under folderID
func (c *Client) AddConversationsToFolder(ctx context.Context, folderID int64, conversationIDs []int64) error {
	path := idPath(models.PathFolders, folderID) + models.PathConversations
	return c.doJSON(ctx, http.MethodPost, path, nil, folderConversationsRequest{ConversationIDs: conversationIDs}, nil)
}

// RemoveConversationFromFolder makes a conversation unfiled
func (c *Client) RemoveConversationFromFolder(ctx context.Context, conversationID int64) error {
	path := idPath(models.PathConversations, conversationID) + "/folder"
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}
