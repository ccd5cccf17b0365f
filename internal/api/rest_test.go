package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)

	_, err = NewClient("not a url")
	assert.Error(t, err)

	c, err := NewClient("http://backend.test/api///", WithHTTPClient(&fakeDoer{}))
	require.NoError(t, err)
	assert.Equal(t, "http://backend.test/api", c.BaseURL())
}

func TestClient_Routes(t *testing.T) {
	folder := int64(5)

	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantURL    string
		wantBody   string
	}{
		{
			name: "list conversations unfiled",
			call: func(c *Client) error {
				_, err := c.ListConversations(context.Background(), ConversationQuery{Keyword: "plan", Folder: models.Unfiled()})
				return err
			},
			wantMethod: http.MethodGet,
			wantURL:    "http://backend.test/api/conversations?folderId=null&keyword=plan",
		},
		{
			name: "list conversations in folder",
			call: func(c *Client) error {
				_, err := c.ListConversations(context.Background(), ConversationQuery{Folder: models.InFolder(folder)})
				return err
			},
			wantMethod: http.MethodGet,
			wantURL:    "http://backend.test/api/conversations?folderId=5",
		},
		{
			name: "list conversations unfiltered",
			call: func(c *Client) error {
				_, err := c.ListConversations(context.Background(), ConversationQuery{})
				return err
			},
			wantMethod: http.MethodGet,
			wantURL:    "http://backend.test/api/conversations",
		},
		{
			name:       "delete conversation",
			call:       func(c *Client) error { return c.DeleteConversation(context.Background(), 9) },
			wantMethod: http.MethodDelete,
			wantURL:    "http://backend.test/api/conversations/9",
		},
		{
			name:       "batch delete conversations",
			call:       func(c *Client) error { return c.BatchDeleteConversations(context.Background(), []int64{1, 2, 3}) },
			wantMethod: http.MethodPost,
			wantURL:    "http://backend.test/api/conversations/batch-delete",
			wantBody:   `{"ids":[1,2,3]}`,
		},
		{
			name: "list messages",
			call: func(c *Client) error {
				_, err := c.ListMessages(context.Background(), 4)
				return err
			},
			wantMethod: http.MethodGet,
			wantURL:    "http://backend.test/api/conversations/4/messages",
		},
		{
			name:       "delete message",
			call:       func(c *Client) error { return c.DeleteMessage(context.Background(), 8) },
			wantMethod: http.MethodDelete,
			wantURL:    "http://backend.test/api/messages/8",
		},
		{
			name:       "batch delete messages",
			call:       func(c *Client) error { return c.BatchDeleteMessages(context.Background(), []int64{8, 9}) },
			wantMethod: http.MethodPost,
			wantURL:    "http://backend.test/api/messages/batch-delete",
			wantBody:   `{"ids":[8,9]}`,
		},
		{
			name: "update template",
			call: func(c *Client) error {
				_, err := c.UpdateTemplate(context.Background(), models.PromptTemplate{ID: 3, Name: "t"})
				return err
			},
			wantMethod: http.MethodPut,
			wantURL:    "http://backend.test/api/templates/3",
		},
		{
			name:       "delete template",
			call:       func(c *Client) error { return c.DeleteTemplate(context.Background(), 3) },
			wantMethod: http.MethodDelete,
			wantURL:    "http://backend.test/api/templates/3",
		},
		{
			name: "rename folder",
			call: func(c *Client) error {
				_, err := c.UpdateFolder(context.Background(), models.Folder{ID: 5, Name: "Work"})
				return err
			},
			wantMethod: http.MethodPut,
			wantURL:    "http://backend.test/api/folders/5",
		},
		{
			name:       "delete folder",
			call:       func(c *Client) error { return c.DeleteFolder(context.Background(), 5) },
			wantMethod: http.MethodDelete,
			wantURL:    "http://backend.test/api/folders/5",
		},
		{
			name:       "add to folder",
			call:       func(c *Client) error { return c.AddConversationsToFolder(context.Background(), 5, []int64{4}) },
			wantMethod: http.MethodPost,
			wantURL:    "http://backend.test/api/folders/5/conversations",
			wantBody:   `{"conversationIds":[4]}`,
		},
		{
			name:       "remove from folder",
			call:       func(c *Client) error { return c.RemoveConversationFromFolder(context.Background(), 4) },
			wantMethod: http.MethodDelete,
			wantURL:    "http://backend.test/api/conversations/4/folder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
				if req.Method == http.MethodGet {
					return jsonResponse(200, `[]`), nil
				}
				return jsonResponse(200, `{}`), nil
			}}
			c := newTestClient(t, doer)

			require.NoError(t, tt.call(c))
			require.Equal(t, 1, doer.count())

			req, body := doer.last()
			assert.Equal(t, tt.wantMethod, req.Method)
			assert.Equal(t, tt.wantURL, req.URL.String())
			assert.Equal(t, "application/json", req.Header.Get("Accept"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, body)
			}
		})
	}
}

func TestClient_DecodesEnvelopeAndBareValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare array", body: `[{"id":1,"title":"One","folderId":null},{"id":2,"title":"Two","folderId":5}]`},
		{name: "data envelope", body: `{"code":0,"data":[{"id":1,"title":"One","folderId":null},{"id":2,"title":"Two","folderId":5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
				return jsonResponse(200, tt.body), nil
			}}
			convs, err := newTestClient(t, doer).ListConversations(context.Background(), ConversationQuery{})
			require.NoError(t, err)
			require.Len(t, convs, 2)
			assert.True(t, convs[0].IsUnfiled())
			require.NotNil(t, convs[1].FolderID)
			assert.Equal(t, int64(5), *convs[1].FolderID)
		})
	}
}

func TestClient_ListMessagesDecodesIDs(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `[{"id":1,"conversationId":4,"role":"user","content":"a","createdAt":"2026-01-01T00:00:00Z"},
			{"id":"2","conversationId":4,"role":"assistant","content":"b","tokensUsed":7,"createdAt":"2026-01-01T00:00:01Z"}]`), nil
	}}
	msgs, err := newTestClient(t, doer).ListMessages(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.PersistedID(1), msgs[0].ID)
	assert.Equal(t, models.PersistedID(2), msgs[1].ID)
	require.NotNil(t, msgs[1].TokensUsed)
	assert.Equal(t, 7, *msgs[1].TokensUsed)
}

func TestClient_Errors(t *testing.T) {
	t.Run("status error keeps body", func(t *testing.T) {
		doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(429, `{"error":"rate limit exceeded"}`), nil
		}}
		err := newTestClient(t, doer).DeleteMessage(context.Background(), 1)

		var apiErr *apierrors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 429, apiErr.StatusCode)
		assert.Equal(t, "/messages/1", apiErr.Endpoint)
		assert.Contains(t, apiErr.Body, "rate limit")
		assert.Equal(t, apierrors.MsgRateLimited, apierrors.UserMessage(err))
	})

	t.Run("transport error", func(t *testing.T) {
		doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}}
		_, err := newTestClient(t, doer).ListFolders(context.Background())

		var netErr *apierrors.NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, "/folders", netErr.Endpoint)
	})

	t.Run("invalid json", func(t *testing.T) {
		doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(200, `<html>`), nil
		}}
		_, err := newTestClient(t, doer).ListTemplates(context.Background())
		assert.ErrorIs(t, err, apierrors.ErrInvalidResponse)
	})

	t.Run("request timeout", func(t *testing.T) {
		doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}}
		c, err := NewClient("http://backend.test", WithHTTPClient(doer), WithRequestTimeout(20*time.Millisecond))
		require.NoError(t, err)

		_, err = c.ListFolders(context.Background())
		var timeoutErr *apierrors.TimeoutError
		assert.ErrorAs(t, err, &timeoutErr)
	})

	t.Run("closed client", func(t *testing.T) {
		c := newTestClient(t, &fakeDoer{})
		c.Close()
		assert.True(t, c.IsClosed())
		assert.Error(t, c.DeleteFolder(context.Background(), 1))
	})
}

func TestClient_CreateSendsJSON(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(201, `{"id":12,"name":"Work","color":"#ff0000"}`), nil
	}}
	folder, err := newTestClient(t, doer).CreateFolder(context.Background(), models.Folder{Name: "Work", Color: "#ff0000"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), folder.ID)

	_, body := doer.last()
	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &sent))
	assert.Equal(t, "Work", sent["name"])
	assert.Equal(t, "#ff0000", sent["color"])
}
