package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const pendingPrefix = "pending:"

// MessageID is either a local pending key or a server-assigned id.
// A pending id never compares equal to a persisted one.
type MessageID struct {
	pending string
	server  int64
}

// PersistedID wraps a server-assigned message id
func PersistedID(id int64) MessageID {
	return MessageID{server: id}
}

// PendingID wraps a local key for a message the server has not confirmed yet
func PendingID(key string) MessageID {
	return MessageID{pending: key}
}

// NewPendingID returns a pending id with a fresh random key
func NewPendingID() MessageID {
	return PendingID(uuid.NewString())
}

// IsPending reports whether the id is still a local placeholder
func (id MessageID) IsPending() bool {
	return id.pending != ""
}

// IsZero reports whether the id carries no identity at all
func (id MessageID) IsZero() bool {
	return id.pending == "" && id.server == 0
}

// Server returns the server id and whether the id is persisted
func (id MessageID) Server() (int64, bool) {
	if id.IsPending() || id.server == 0 {
		return 0, false
	}
	return id.server, true
}

// LocalKey returns the pending key, or "" for persisted ids
func (id MessageID) LocalKey() string {
	return id.pending
}

func (id MessageID) String() string {
	if id.IsPending() {
		return pendingPrefix + id.pending
	}
	return strconv.FormatInt(id.server, 10)
}

// MarshalJSON encodes persisted ids as numbers and pending ids as strings
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.IsPending() {
		return json.Marshal(id.String())
	}
	return []byte(strconv.FormatInt(id.server, 10)), nil
}

// UnmarshalJSON accepts numbers, numeric strings and "pending:<key>" strings
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = MessageID{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.HasPrefix(s, pendingPrefix) {
			*id = PendingID(strings.TrimPrefix(s, pendingPrefix))
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id %q", s)
		}
		*id = PersistedID(n)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %s", data)
	}
	*id = PersistedID(n)
	return nil
}

// Message is a single entry of a conversation
type Message struct {
	ID             MessageID `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	TokensUsed     *int      `json:"tokensUsed,omitempty"`
	IsStreaming    bool      `json:"isStreaming,omitempty"`
}

// NewerThan reports whether m was created after other.
// Pending messages are newer than any persisted one; persisted messages
// are ordered by server id.
func (m Message) NewerThan(other Message) bool {
	if m.ID.IsPending() {
		return !other.ID.IsPending()
	}
	if other.ID.IsPending() {
		return false
	}
	return m.ID.server > other.ID.server
}
