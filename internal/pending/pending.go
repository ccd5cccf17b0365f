// Package pending tracks in-flight operations by key so that expensive work
// runs at most once at a time.
package pending

import (
	"sort"
	"strconv"
	"sync"
)

// Operation keys shared by the store and the coordinator.
const (
	KeySyncConversations        = "sync_conversations"
	KeySyncTemplates            = "sync_templates"
	KeySyncFolders              = "sync_folders"
	KeyBatchDeleteConversations = "batch_delete_conversations"
	KeyRefreshAll               = "refresh_all"
	KeyInitialize               = "initialize"
)

// SyncMessagesKey returns the key guarding a message load for one conversation.
func SyncMessagesKey(conversationID int64) string {
	return "sync_messages_" + strconv.FormatInt(conversationID, 10)
}

// Set is a thread-safe set of operation keys. The zero value is ready to use.
type Set struct {
	mu   sync.Mutex
	keys map[string]uint64
	gen  uint64
}

// New creates an empty set.
func New() *Set {
	return &Set{}
}

// TryAcquire atomically checks whether key is in flight and marks it if not.
// When ok is false the caller must skip the operation. The returned release
// removes the key and is safe to call more than once; it is meant to be
// deferred so an error or panic cannot leak the key.
func (s *Set) TryAcquire(key string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys == nil {
		s.keys = make(map[string]uint64)
	}
	if _, busy := s.keys[key]; busy {
		return func() {}, false
	}

	s.gen++
	gen := s.gen
	s.keys[key] = gen

	var once sync.Once
	return func() {
		once.Do(func() { s.release(key, gen) })
	}, true
}

// release drops key only if it still belongs to the acquisition that
// created it. After Clear a stale release must not free a newer holder.
func (s *Set) release(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] == gen {
		delete(s.keys, key)
	}
}

// Has reports whether key is in flight.
func (s *Set) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Keys returns the in-flight keys in sorted order.
func (s *Set) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of in-flight keys.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Clear abandons every in-flight key.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = make(map[string]uint64)
}
