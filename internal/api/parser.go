package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/diogo/chatsync/internal/models"
)

// GJSON paths for stream payload fields. final and init payloads may nest
// the message under "message" or put its fields at the top level.
const (
	PathEventType       = "type"
	PathConversationID  = "conversationId"
	PathConversationAlt = "conversation.id"
	PathUserMessage     = "userMessage"
	PathChunkContent    = "content"
	PathFinalMessage    = "message"
	PathMessageID       = "id"
	PathMessageIDAlt    = "messageId"
	PathContent         = "content"
	PathTokensUsed      = "tokensUsed"
	PathCreatedAt       = "createdAt"
	PathErrorText       = "error"
	PathErrorTextAlt    = "message"
)

// LineParser turns raw stream bytes into events. It buffers incomplete
// lines across Feed calls and is not safe for concurrent use.
type LineParser struct {
	buf    []byte
	logger *slog.Logger
}

// NewLineParser creates a parser; a nil logger uses slog.Default
func NewLineParser(logger *slog.Logger) *LineParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineParser{logger: logger}
}

// Feed appends p to the buffer and returns the events of every complete line.
// The trailing fragment after the last newline is kept for the next call.
func (p *LineParser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]

		if ev, ok := p.parseLine(string(line)); ok {
			events = append(events, ev)
		}
	}

	// Release the backing array once everything has been consumed
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return events
}

// Flush parses whatever is left in the buffer as a final line
func (p *LineParser) Flush() []Event {
	if len(p.buf) == 0 {
		return nil
	}
	line := string(p.buf)
	p.buf = nil

	if ev, ok := p.parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Buffered returns the number of bytes waiting for a newline
func (p *LineParser) Buffered() int {
	return len(p.buf)
}

func (p *LineParser) parseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	payload, ok := strings.CutPrefix(line, strings.TrimSpace(models.StreamDataPrefix))
	if !ok {
		p.logger.Debug("skipping non-data line", "line", truncate(line, 80))
		return nil, false
	}
	payload = strings.TrimSpace(payload)

	if payload == models.StreamTerminator {
		return nil, false
	}

	if !gjson.Valid(payload) {
		p.logger.Warn("skipping malformed stream line", "line", truncate(payload, 200))
		return nil, false
	}

	parsed := gjson.Parse(payload)
	if !parsed.IsObject() {
		p.logger.Warn("skipping stream line that is not an object", "line", truncate(payload, 200))
		return nil, false
	}

	eventType := parsed.Get(PathEventType).String()
	switch eventType {
	case EventInit:
		return p.parseInit(parsed), true
	case EventChunk:
		return ChunkEvent{Content: parsed.Get(PathChunkContent).String()}, true
	case EventFinal:
		return parseFinal(parsed), true
	case EventError:
		return parseError(parsed), true
	case EventDone:
		return DoneEvent{}, true
	default:
		p.logger.Warn("skipping unknown stream event", "type", eventType)
		return nil, false
	}
}

func (p *LineParser) parseInit(parsed gjson.Result) InitEvent {
	ev := InitEvent{ConversationID: firstInt(parsed, PathConversationID, PathConversationAlt)}

	if raw := parsed.Get(PathUserMessage); raw.IsObject() {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw.Raw), &msg); err != nil {
			p.logger.Warn("ignoring malformed user message in init event", "error", err)
		} else {
			if msg.Role == "" {
				msg.Role = models.RoleUser
			}
			if msg.ConversationID == 0 {
				msg.ConversationID = ev.ConversationID
			}
			ev.UserMessage = &msg
		}
	}
	return ev
}

func parseFinal(parsed gjson.Result) FinalEvent {
	src := parsed
	if nested := parsed.Get(PathFinalMessage); nested.IsObject() {
		src = nested
	}

	ev := FinalEvent{
		MessageID: firstInt(src, PathMessageID, PathMessageIDAlt),
		Content:   src.Get(PathContent).String(),
		CreatedAt: parseTime(src.Get(PathCreatedAt)),
	}
	if ev.MessageID == 0 && src.Raw != parsed.Raw {
		ev.MessageID = firstInt(parsed, PathMessageIDAlt, PathMessageID)
	}

	tokens := src.Get(PathTokensUsed)
	if !tokens.Exists() {
		tokens = parsed.Get(PathTokensUsed)
	}
	if tokens.Type == gjson.Number {
		n := int(tokens.Int())
		ev.TokensUsed = &n
	}
	return ev
}

func parseError(parsed gjson.Result) ErrorEvent {
	text := parsed.Get(PathErrorText)
	if text.IsObject() {
		text = text.Get("message")
	}
	if text.String() == "" {
		text = parsed.Get(PathErrorTextAlt)
	}
	return ErrorEvent{Message: text.String()}
}

func firstInt(parsed gjson.Result, paths ...string) int64 {
	for _, path := range paths {
		if v := parsed.Get(path); v.Exists() && v.Int() > 0 {
			return v.Int()
		}
	}
	return 0
}

func parseTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
			return ts
		}
	case gjson.Number:
		if v.Int() > 0 {
			return time.UnixMilli(v.Int())
		}
	}
	return time.Time{}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
