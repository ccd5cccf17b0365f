package api

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
)

// recorder collects callback invocations
type recorder struct {
	mu       sync.Mutex
	updates  []models.Message
	created  []int64
	onUpdate func(models.Message)
}

func (r *recorder) update(m models.Message) {
	r.mu.Lock()
	r.updates = append(r.updates, m)
	hook := r.onUpdate
	r.mu.Unlock()
	if hook != nil {
		hook(m)
	}
}

func (r *recorder) create(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, id)
}

func (r *recorder) assistant() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.updates {
		if m.Role == models.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

const helloStream = "data: {\"type\":\"init\",\"conversationId\":7,\"userMessage\":{\"id\":1,\"role\":\"user\",\"content\":\"hello\"}}\n" +
	"data: {\"type\":\"chunk\",\"content\":\"Hi\"}\n" +
	"data: {\"type\":\"chunk\",\"content\":\" there\"}\n" +
	"data: {\"type\":\"final\",\"message\":{\"id\":2,\"content\":\"Hi there\",\"tokensUsed\":12}}\n" +
	"data: {\"type\":\"done\"}\n" +
	"data: [DONE]\n"

func TestStreamClient_HelloScenario(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		// Split at awkward offsets to exercise buffering
		return streamResponse(helloStream[:30], helloStream[30:131], helloStream[131:]), nil
	}}
	stream := NewStreamClient(newTestClient(t, doer))

	rec := &recorder{}
	err := stream.SendStreamMessage(context.Background(), StreamRequest{
		Message:      "  hello ",
		Model:        "m1",
		SystemPrompt: "be nice",
		HistoryLimit: 10,
	}, rec.update, rec.create)
	require.NoError(t, err)
	assert.False(t, stream.IsStreaming())

	assert.Equal(t, []int64{7}, rec.created)

	// Request shape
	req, body := doer.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://backend.test/api/chat/stream", req.URL.String())
	assert.Equal(t, "text/event-stream", req.Header.Get("Accept"))
	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &sent))
	assert.Nil(t, sent["conversationId"])
	assert.Equal(t, "hello", sent["message"])
	assert.Equal(t, "m1", sent["model"])
	assert.Equal(t, "be nice", sent["systemPrompt"])
	assert.Equal(t, float64(10), sent["historyLimit"])

	// User message first, then the placeholder
	require.GreaterOrEqual(t, len(rec.updates), 2)
	assert.Equal(t, models.RoleUser, rec.updates[0].Role)
	assert.Equal(t, "hello", rec.updates[0].Content)

	replies := rec.assistant()
	require.Len(t, replies, 4)

	placeholder := replies[0]
	assert.True(t, placeholder.ID.IsPending())
	assert.True(t, placeholder.IsStreaming)
	assert.Empty(t, placeholder.Content)
	assert.Equal(t, int64(7), placeholder.ConversationID)

	assert.Equal(t, "Hi", replies[1].Content)
	assert.Equal(t, "Hi there", replies[2].Content)
	assert.True(t, replies[2].IsStreaming)
	assert.Equal(t, placeholder.ID, replies[2].ID)

	final := replies[3]
	assert.Equal(t, models.PersistedID(2), final.ID)
	assert.Equal(t, "Hi there", final.Content)
	assert.False(t, final.IsStreaming)
	require.NotNil(t, final.TokensUsed)
	assert.Equal(t, 12, *final.TokensUsed)
}

func TestStreamClient_ChunkOrdering(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("data: {\"type\":\"init\",\"conversationId\":3}\n")
	for _, piece := range []string{"a", "bc", "", "def", "g"} {
		sb.WriteString("data: {\"type\":\"chunk\",\"content\":\"" + piece + "\"}\n")
	}
	sb.WriteString("data: {\"type\":\"final\",\"message\":{\"id\":50}}\n")
	raw := sb.String()

	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		// One byte per read
		chunks := make([]string, 0, len(raw))
		for i := 0; i < len(raw); i++ {
			chunks = append(chunks, raw[i:i+1])
		}
		return streamResponse(chunks...), nil
	}}
	stream := NewStreamClient(newTestClient(t, doer))

	conv := int64(3)
	rec := &recorder{}
	require.NoError(t, stream.SendStreamMessage(context.Background(), StreamRequest{ConversationID: &conv, Message: "x"}, rec.update, rec.create))

	// Existing conversation: no creation callback
	assert.Empty(t, rec.created)

	replies := rec.assistant()
	require.Len(t, replies, 7)
	for i := 1; i < len(replies)-1; i++ {
		assert.GreaterOrEqual(t, len(replies[i].Content), len(replies[i-1].Content))
		assert.True(t, replies[i].IsStreaming)
	}

	last, final := replies[len(replies)-2], replies[len(replies)-1]
	assert.Equal(t, "abcdefg", last.Content)
	// Final without content keeps the accumulated text
	assert.Equal(t, last.Content, final.Content)
	assert.Equal(t, models.PersistedID(50), final.ID)
	assert.False(t, final.IsStreaming)
}

func TestStreamClient_ReplayedInitReusesPlaceholder(t *testing.T) {
	raw := "data: {\"type\":\"init\",\"conversationId\":7}\n" +
		"data: {\"type\":\"init\",\"conversationId\":7}\n" +
		"data: {\"type\":\"chunk\",\"content\":\"x\"}\n"
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return streamResponse(raw), nil
	}}
	stream := NewStreamClient(newTestClient(t, doer))

	rec := &recorder{}
	require.NoError(t, stream.SendStreamMessage(context.Background(), StreamRequest{Message: "hi"}, rec.update, rec.create))

	assert.Equal(t, []int64{7}, rec.created)
	replies := rec.assistant()
	require.NotEmpty(t, replies)
	for _, r := range replies {
		assert.Equal(t, replies[0].ID, r.ID)
	}

	// The stream ended without final: the last publication is settled
	assert.False(t, replies[len(replies)-1].IsStreaming)
	assert.Equal(t, "x", replies[len(replies)-1].Content)
}

func TestStreamClient_ErrorEvent(t *testing.T) {
	raw := "data: {\"type\":\"init\",\"conversationId\":7}\n" +
		"data: {\"type\":\"chunk\",\"content\":\"partial\"}\n" +
		"data: {\"type\":\"error\",\"error\":\"频率限制\"}\n" +
		"data: {\"type\":\"chunk\",\"content\":\"never\"}\n"
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return streamResponse(raw), nil
	}}
	stream := NewStreamClient(newTestClient(t, doer))

	rec := &recorder{}
	err := stream.SendStreamMessage(context.Background(), StreamRequest{Message: "hi"}, rec.update, rec.create)
	require.Error(t, err)

	var streamErr *apierrors.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "频率限制", streamErr.Message)
	assert.Equal(t, apierrors.MsgRateLimited, apierrors.UserMessage(err))

	replies := rec.assistant()
	last := replies[len(replies)-1]
	assert.Equal(t, "partial", last.Content)
	assert.False(t, last.IsStreaming)
}

func TestStreamClient_HTTPError(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 502,
			Status:     "502 Bad Gateway",
			Body:       io.NopCloser(strings.NewReader("upstream down")),
		}, nil
	}}
	stream := NewStreamClient(newTestClient(t, doer))

	rec := &recorder{}
	err := stream.SendStreamMessage(context.Background(), StreamRequest{Message: "hi"}, rec.update, rec.create)

	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.StatusCode)
	assert.Equal(t, "502 Bad Gateway", apiErr.Status)
	assert.Equal(t, "upstream down", apiErr.Body)
	assert.Contains(t, err.Error(), "502 Bad Gateway")
	assert.Empty(t, rec.updates)
}

func TestStreamClient_NoBody(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Status: "200 OK"}, nil
	}}
	stream := NewStreamClient(newTestClient(t, doer))

	err := stream.SendStreamMessage(context.Background(), StreamRequest{Message: "hi"}, nil, nil)
	assert.ErrorIs(t, err, apierrors.ErrNoResponseBody)
}

func TestStreamClient_EmptyMessage(t *testing.T) {
	doer := &fakeDoer{}
	stream := NewStreamClient(newTestClient(t, doer))

	err := stream.SendStreamMessage(context.Background(), StreamRequest{Message: "   "}, nil, nil)
	assert.ErrorIs(t, err, apierrors.ErrEmptyMessage)
	assert.Equal(t, 0, doer.count())
}

func TestStreamClient_StopStreaming(t *testing.T) {
	var stream *StreamClient
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		resp, pw := pipeResponse(req)
		go func() {
			_, _ = pw.Write([]byte("data: {\"type\":\"init\",\"conversationId\":7}\n"))
			_, _ = pw.Write([]byte("data: {\"type\":\"chunk\",\"content\":\"Hi\"}\n"))
		}()
		return resp, nil
	}}
	stream = NewStreamClient(newTestClient(t, doer))

	rec := &recorder{}
	rec.onUpdate = func(m models.Message) {
		if m.Content == "Hi" && m.IsStreaming {
			stream.StopStreaming()
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- stream.SendStreamMessage(context.Background(), StreamRequest{Message: "hi"}, rec.update, rec.create)
	}()

	select {
	case err := <-done:
		// Abort is not an error
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}

	assert.False(t, stream.IsStreaming())
	replies := rec.assistant()
	last := replies[len(replies)-1]
	assert.False(t, last.IsStreaming)
	assert.Equal(t, "Hi", last.Content)
}

func TestStreamClient_ConcurrentSendRejected(t *testing.T) {
	release := make(chan struct{})
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		resp, pw := pipeResponse(req)
		go func() {
			_, _ = pw.Write([]byte("data: {\"type\":\"init\",\"conversationId\":7}\n"))
			<-release
			_ = pw.Close()
		}()
		return resp, nil
	}}
	stream := NewStreamClient(newTestClient(t, doer))

	started := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- stream.SendStreamMessage(context.Background(), StreamRequest{Message: "first"}, func(models.Message) {
			once.Do(func() { close(started) })
		}, nil)
	}()
	<-started

	err := stream.SendStreamMessage(context.Background(), StreamRequest{Message: "second"}, nil, nil)
	assert.ErrorIs(t, err, apierrors.ErrStreamActive)
	assert.Equal(t, 1, doer.count())

	close(release)
	require.NoError(t, <-done)
}

func TestStreamClient_IdleTimeout(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		resp, pw := pipeResponse(req)
		go func() {
			_, _ = pw.Write([]byte("data: {\"type\":\"init\",\"conversationId\":7}\n"))
		}()
		return resp, nil
	}}
	stream := NewStreamClient(newTestClient(t, doer), WithIdleTimeout(50*time.Millisecond))

	rec := &recorder{}
	err := stream.SendStreamMessage(context.Background(), StreamRequest{Message: "hi"}, rec.update, rec.create)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrStreamStalled)
	assert.False(t, apierrors.IsAborted(err))
	assert.Equal(t, apierrors.MsgTimeout, apierrors.UserMessage(err))

	replies := rec.assistant()
	assert.False(t, replies[len(replies)-1].IsStreaming)
}

func TestStreamClient_CallerCancellation(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		resp, _ := pipeResponse(req)
		return resp, nil
	}}
	stream := NewStreamClient(newTestClient(t, doer), WithIdleTimeout(0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := stream.SendStreamMessage(ctx, StreamRequest{Message: "hi"}, nil, nil)
	assert.True(t, apierrors.IsAborted(err))
	assert.Empty(t, apierrors.UserMessage(err))
}
