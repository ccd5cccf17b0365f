package api

import (
	"time"

	"github.com/diogo/chatsync/internal/models"
)

// Stream event type tags
const (
	EventInit  = "init"
	EventChunk = "chunk"
	EventFinal = "final"
	EventError = "error"
	EventDone  = "done"
)

// Event is one decoded line of the chat stream. The set of implementations
// is closed: InitEvent, ChunkEvent, FinalEvent, ErrorEvent and DoneEvent.
type Event interface {
	Type() string
	isEvent()
}

// InitEvent carries the server conversation id and the persisted user message
type InitEvent struct {
	ConversationID int64
	UserMessage    *models.Message
}

// ChunkEvent carries the next piece of the assistant reply
type ChunkEvent struct {
	Content string
}

// FinalEvent carries the authoritative assistant message
type FinalEvent struct {
	MessageID  int64
	Content    string
	TokensUsed *int
	CreatedAt  time.Time
}

// ErrorEvent is a server-side failure reported inside the stream
type ErrorEvent struct {
	Message string
}

// DoneEvent marks the end of the exchange
type DoneEvent struct{}

func (InitEvent) Type() string  { return EventInit }
func (ChunkEvent) Type() string { return EventChunk }
func (FinalEvent) Type() string { return EventFinal }
func (ErrorEvent) Type() string { return EventError }
func (DoneEvent) Type() string  { return EventDone }

func (InitEvent) isEvent()  {}
func (ChunkEvent) isEvent() {}
func (FinalEvent) isEvent() {}
func (ErrorEvent) isEvent() {}
func (DoneEvent) isEvent()  {}
