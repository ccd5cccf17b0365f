package pending

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_TryAcquire(t *testing.T) {
	s := New()

	release, ok := s.TryAcquire(KeySyncConversations)
	require.True(t, ok)
	assert.True(t, s.Has(KeySyncConversations))

	// Second attempt while in flight is rejected
	_, ok = s.TryAcquire(KeySyncConversations)
	assert.False(t, ok)

	release()
	assert.False(t, s.Has(KeySyncConversations))

	_, ok = s.TryAcquire(KeySyncConversations)
	assert.True(t, ok)
}

func TestSet_ZeroValue(t *testing.T) {
	var s Set
	release, ok := s.TryAcquire("k")
	require.True(t, ok)
	release()
	assert.Equal(t, 0, s.Len())
}

func TestSet_ReleaseIsIdempotent(t *testing.T) {
	s := New()
	release, _ := s.TryAcquire("k")
	release()

	other, ok := s.TryAcquire("k")
	require.True(t, ok)

	// A second call of the old release must not free the new holder
	release()
	assert.True(t, s.Has("k"))
	other()
	assert.False(t, s.Has("k"))
}

func TestSet_DeferredReleaseOnPanic(t *testing.T) {
	s := New()

	func() {
		defer func() { _ = recover() }()
		release, ok := s.TryAcquire("boom")
		require.True(t, ok)
		defer release()
		panic("failure inside operation")
	}()

	assert.False(t, s.Has("boom"))
}

func TestSet_Clear(t *testing.T) {
	s := New()
	stale, _ := s.TryAcquire(KeyRefreshAll)
	_, _ = s.TryAcquire(SyncMessagesKey(42))

	assert.Equal(t, []string{KeyRefreshAll, "sync_messages_42"}, s.Keys())

	s.Clear()
	assert.Empty(t, s.Keys())

	fresh, ok := s.TryAcquire(KeyRefreshAll)
	require.True(t, ok)

	// Releasing an acquisition abandoned by Clear leaves the new one alone
	stale()
	assert.True(t, s.Has(KeyRefreshAll))
	fresh()
}

func TestSet_ConcurrentAcquire(t *testing.T) {
	s := New()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := s.TryAcquire(KeyInitialize); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestSyncMessagesKey(t *testing.T) {
	assert.Equal(t, "sync_messages_7", SyncMessagesKey(7))
}
