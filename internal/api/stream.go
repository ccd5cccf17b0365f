package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	http "github.com/bogdanfinn/fhttp"

	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
)

// DefaultIdleTimeout is the longest silence tolerated on an open stream
const DefaultIdleTimeout = 120 * time.Second

// readBufferSize is the size of each body read
const readBufferSize = 4096

// errStopRequested is the cancellation cause used by StopStreaming
var errStopRequested = errors.New("stream stopped by user")

// StreamRequest is the body of a chat stream request
type StreamRequest struct {
	ConversationID *int64 `json:"conversationId"`
	Message        string `json:"message"`
	Model          string `json:"model"`
	SystemPrompt   string `json:"systemPrompt"`
	HistoryLimit   int    `json:"historyLimit"`
}

// Streamer sends a chat message and reports the reply incrementally
type Streamer interface {
	SendStreamMessage(ctx context.Context, req StreamRequest, onUpdate func(models.Message), onConversationCreated func(int64)) error
	StopStreaming()
	IsStreaming() bool
}

var _ Streamer = (*StreamClient)(nil)

// StreamClient runs one chat stream at a time over the client's transport
type StreamClient struct {
	client      *Client
	idleTimeout time.Duration
	logger      *slog.Logger

	streaming atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelCauseFunc
}

// StreamOption configures a StreamClient
type StreamOption func(*StreamClient)

// WithIdleTimeout sets the maximum silence between two reads. Zero waits forever.
func WithIdleTimeout(timeout time.Duration) StreamOption {
	return func(s *StreamClient) {
		s.idleTimeout = timeout
	}
}

// NewStreamClient creates a stream client sharing c's transport and base URL
func NewStreamClient(c *Client, opts ...StreamOption) *StreamClient {
	s := &StreamClient{
		client:      c,
		idleTimeout: DefaultIdleTimeout,
		logger:      c.logger.With("component", "stream"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsStreaming reports whether a stream is in flight
func (s *StreamClient) IsStreaming() bool {
	return s.streaming.Load()
}

// StopStreaming aborts the in-flight stream, if any. The aborted send
// returns nil and its placeholder is republished with IsStreaming false.
func (s *StreamClient) StopStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel(errStopRequested)
	}
}

// SendStreamMessage posts req to the stream endpoint and dispatches the
// events in arrival order. onUpdate receives every new or changed message;
// onConversationCreated fires once when a new conversation gets its id.
// A second call while a stream is active returns ErrStreamActive without
// issuing a request.
func (s *StreamClient) SendStreamMessage(ctx context.Context, req StreamRequest, onUpdate func(models.Message), onConversationCreated func(int64)) error {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return apierrors.ErrEmptyMessage
	}
	if s.client.IsClosed() {
		return errors.New("client is closed")
	}
	if !s.streaming.CompareAndSwap(false, true) {
		return apierrors.ErrStreamActive
	}
	defer s.streaming.Store(false)

	if onUpdate == nil {
		onUpdate = func(models.Message) {}
	}
	if onConversationCreated == nil {
		onConversationCreated = func(int64) {}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel(nil)
	}()

	ex := &exchange{
		req:                   req,
		onUpdate:              onUpdate,
		onConversationCreated: onConversationCreated,
		logger:                s.logger,
	}
	if req.ConversationID != nil {
		ex.conversationID = *req.ConversationID
	}
	// Whatever the outcome, no placeholder is left marked as streaming
	defer ex.settle()

	err := s.run(ctx, cancel, ex)
	return s.classify(ctx, err)
}

func (s *StreamClient) run(ctx context.Context, cancel context.CancelCauseFunc, ex *exchange) error {
	var watchdog *time.Timer
	if s.idleTimeout > 0 {
		watchdog = time.AfterFunc(s.idleTimeout, func() {
			cancel(apierrors.ErrStreamStalled)
		})
		defer watchdog.Stop()
	}

	body, err := json.Marshal(ex.req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.endpoint(models.PathChatStream, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	for key, value := range models.StreamHeaders() {
		httpReq.Header.Set(key, value)
	}

	s.logger.Debug("opening stream", "conversation", ex.conversationID, "model", ex.req.Model)

	resp, err := s.client.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apierrors.NewNetworkError("stream", models.PathChatStream, err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierrors.NewAPIErrorWithBody(resp.StatusCode, resp.Status, models.PathChatStream,
			"chat stream failed", readErrorBody(resp.Body))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return apierrors.ErrNoResponseBody
	}

	parser := NewLineParser(s.logger)
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(s.idleTimeout)
			}
			for _, ev := range parser.Feed(buf[:n]) {
				if err := ex.handle(ev); err != nil {
					return err
				}
				if ex.done {
					return nil
				}
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			for _, ev := range parser.Flush() {
				if err := ex.handle(ev); err != nil {
					return err
				}
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apierrors.NewNetworkError("stream read", models.PathChatStream, readErr)
	}
}

// classify maps cancellation causes: a user stop is not an error, a stall
// becomes a TimeoutError and any other cancellation is the caller's.
func (s *StreamClient) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == nil {
		return err
	}

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errStopRequested):
		s.logger.Debug("stream stopped by user")
		return nil
	case errors.Is(cause, apierrors.ErrStreamStalled):
		s.logger.Warn("stream stalled", "idle_timeout", s.idleTimeout)
		return apierrors.NewTimeoutError("no data received for " + s.idleTimeout.String())
	default:
		return err
	}
}

// exchange holds the per-send dispatch state
type exchange struct {
	req                   StreamRequest
	onUpdate              func(models.Message)
	onConversationCreated func(int64)
	logger                *slog.Logger

	conversationID int64
	created        bool
	placeholder    *models.Message
	content        strings.Builder
	done           bool
}

func (ex *exchange) handle(ev Event) error {
	switch e := ev.(type) {
	case InitEvent:
		ex.handleInit(e)
	case ChunkEvent:
		ex.ensurePlaceholder()
		ex.content.WriteString(e.Content)
		ex.placeholder.Content = ex.content.String()
		ex.publish()
	case FinalEvent:
		ex.handleFinal(e)
	case ErrorEvent:
		return apierrors.NewStreamError(e.Message)
	case DoneEvent:
		ex.done = true
	}
	return nil
}

func (ex *exchange) handleInit(e InitEvent) {
	if e.ConversationID > 0 {
		if ex.req.ConversationID == nil && !ex.created {
			ex.created = true
			ex.onConversationCreated(e.ConversationID)
		}
		ex.conversationID = e.ConversationID
	}

	if e.UserMessage != nil {
		ex.onUpdate(*e.UserMessage)
	}

	if ex.placeholder != nil {
		// Replayed init or a chunk that raced ahead: keep the same placeholder
		if ex.placeholder.ConversationID == 0 {
			ex.placeholder.ConversationID = ex.conversationID
		}
		ex.publish()
		return
	}
	ex.ensurePlaceholder()
	ex.publish()
}

func (ex *exchange) handleFinal(e FinalEvent) {
	ex.ensurePlaceholder()

	msg := ex.placeholder
	if e.MessageID > 0 {
		msg.ID = models.PersistedID(e.MessageID)
	}
	if e.Content != "" {
		msg.Content = e.Content
	} else {
		msg.Content = ex.content.String()
	}
	if e.TokensUsed != nil {
		tokens := *e.TokensUsed
		msg.TokensUsed = &tokens
	}
	if !e.CreatedAt.IsZero() {
		msg.CreatedAt = e.CreatedAt
	}
	msg.IsStreaming = false
	ex.publish()
}

func (ex *exchange) ensurePlaceholder() {
	if ex.placeholder != nil {
		return
	}
	ex.placeholder = &models.Message{
		ID:             models.NewPendingID(),
		ConversationID: ex.conversationID,
		Role:           models.RoleAssistant,
		CreatedAt:      time.Now(),
		IsStreaming:    true,
	}
}

func (ex *exchange) publish() {
	ex.onUpdate(*ex.placeholder)
}

// settle clears the streaming flag of a placeholder that never got its final event
func (ex *exchange) settle() {
	if ex.placeholder == nil || !ex.placeholder.IsStreaming {
		return
	}
	ex.placeholder.IsStreaming = false
	ex.logger.Debug("settling unfinished reply", "content_len", len(ex.placeholder.Content))
	ex.publish()
}
