// Package coordinator orchestrates the chat store: start-up ordering,
// single-flight refreshes, settings persistence and error recovery.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diogo/chatsync/internal/chat"
	"github.com/diogo/chatsync/internal/config"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/pending"
	"github.com/diogo/chatsync/internal/storage"
)

// DefaultAutosaveInterval is how often settings are written while initialized
const DefaultAutosaveInterval = 30 * time.Second

// Kind names a cached list that can be invalidated
type Kind string

const (
	KindConversations Kind = "conversations"
	KindMessages      Kind = "messages"
	KindTemplates     Kind = "templates"
	KindFolders       Kind = "folders"
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindConversations, KindMessages, KindTemplates, KindFolders:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// Coordinator sits above a chat.Store and shares its pending set
type Coordinator struct {
	store    *chat.Store
	kv       storage.KV
	pending  *pending.Set
	notifier chat.Notifier
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu sync.Mutex
	// attempted is set as soon as Initialize starts and only Recover clears it
	attempted    bool
	initialized  bool
	lastSync     time.Time
	stopAutosave context.CancelFunc
	autosaveDone chan struct{}
	unsubscribe  func()
	closed       bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithAutosaveInterval sets the autosave period
func WithAutosaveInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithNotifier sets where refresh results are reported
func WithNotifier(n chat.Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the coordinator logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for lastSyncTime
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a coordinator for store persisting to kv
func New(store *chat.Store, kv storage.KV, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		kv:       kv,
		pending:  store.Pending(),
		notifier: chat.NotifierFunc(func(chat.Level, string) {}),
		logger:   slog.Default(),
		interval: DefaultAutosaveInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "coordinator")
	return c
}

// Store returns the coordinated store
func (c *Coordinator) Store() *chat.Store {
	return c.store
}

// IsInitialized reports whether Initialize has completed
func (c *Coordinator) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// LastSyncTime returns when the lists were last loaded
func (c *Coordinator) LastSyncTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// Initialize restores persisted settings, loads conversations, templates
// and folders concurrently, then persists and starts autosave. It runs at
// most once, even when it fails; later calls return nil until Recover
// resets it. The first load failure, already reported by the store, is
// returned.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.attempted || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.attempted = true
	c.mu.Unlock()

	release, ok := c.pending.TryAcquire(pending.KeyInitialize)
	if !ok {
		return nil
	}
	defer release()

	settings, err := config.LoadSettings(c.kv, c.store.Settings())
	if err != nil {
		c.logger.Warn("using default settings", "error", err)
	}
	c.store.ApplySettings(settings)

	c.mu.Lock()
	c.lastSync = settings.LastSyncTime
	c.mu.Unlock()

	loadErr := c.loadLists(ctx, false)

	c.mu.Lock()
	c.initialized = true
	c.lastSync = c.now()
	c.mu.Unlock()

	if err := c.PersistSettings(); err != nil {
		c.logger.Warn("failed to persist settings after init", "error", err)
	}
	c.startAutosave()

	c.logger.Info("initialized",
		"conversations", len(c.store.Conversations()),
		"templates", len(c.store.Templates()),
		"folders", len(c.store.Folders()))
	return loadErr
}

// loadLists runs the list loads concurrently. Every load runs to
// completion even when another fails.
func (c *Coordinator) loadLists(ctx context.Context, withMessages bool) error {
	var g errgroup.Group
	g.Go(func() error { return c.store.LoadConversations(ctx) })
	g.Go(func() error { return c.store.LoadTemplates(ctx) })
	g.Go(func() error { return c.store.LoadFolders(ctx) })
	if withMessages {
		if id := c.store.CurrentID(); id > 0 {
			g.Go(func() error { return c.store.LoadMessages(ctx, id) })
		}
	}
	return g.Wait()
}

// Invalidate reloads exactly the list named by kind. Messages are only
// reloaded when the current conversation is persisted.
func (c *Coordinator) Invalidate(ctx context.Context, kind Kind) error {
	switch kind {
	case KindConversations:
		return c.store.LoadConversations(ctx)
	case KindTemplates:
		return c.store.LoadTemplates(ctx)
	case KindFolders:
		return c.store.LoadFolders(ctx)
	case KindMessages:
		id := c.store.CurrentID()
		if id <= 0 {
			c.logger.Debug("no persisted conversation to reload messages for")
			return nil
		}
		return c.store.LoadMessages(ctx, id)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
}

// RefreshAll reloads every list and the current messages, then stamps and
// persists. The outcome is reported through the notifier.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	release, ok := c.pending.TryAcquire(pending.KeyRefreshAll)
	if !ok {
		c.logger.Debug("refresh already in flight")
		return nil
	}
	defer release()

	if err := c.loadLists(ctx, true); err != nil {
		c.notifier.Notify(chat.LevelError, "Refresh failed")
		return err
	}

	c.mu.Lock()
	c.lastSync = c.now()
	c.mu.Unlock()

	if err := c.PersistSettings(); err != nil {
		c.logger.Warn("failed to persist settings after refresh", "error", err)
	}
	c.notifier.Notify(chat.LevelSuccess, "Data refreshed")
	return nil
}

// BatchDeleteConversations deletes ids with one request
func (c *Coordinator) BatchDeleteConversations(ctx context.Context, ids []int64) error {
	return c.store.BatchDeleteConversations(ctx, ids)
}

// Recover abandons every in-flight operation key, clears the store error
// and initializes again from scratch.
func (c *Coordinator) Recover(ctx context.Context) error {
	c.logger.Info("recovering", "abandoned", c.pending.Keys())

	c.pending.Clear()
	c.store.ClearError()
	c.stop()

	c.mu.Lock()
	c.attempted = false
	c.initialized = false
	c.mu.Unlock()

	return c.Initialize(ctx)
}

// PersistSettings writes the durable settings with the last sync time
func (c *Coordinator) PersistSettings() error {
	settings := c.store.Settings()
	c.mu.Lock()
	settings.LastSyncTime = c.lastSync
	c.mu.Unlock()

	if err := config.SaveSettings(c.kv, settings); err != nil {
		return err
	}
	c.logger.Debug("settings persisted", "model", settings.SelectedModel)
	return nil
}

// Settings returns what PersistSettings would write
func (c *Coordinator) Settings() models.PersistedSettings {
	settings := c.store.Settings()
	settings.LastSyncTime = c.LastSyncTime()
	return settings
}

func (c *Coordinator) startAutosave() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.stopAutosave = cancel
	c.autosaveDone = done
	c.unsubscribe = c.store.Subscribe(func(ch chat.Change) {
		if ch.Kind != chat.ChangeSettings || !c.IsInitialized() {
			return
		}
		if err := c.PersistSettings(); err != nil {
			c.logger.Warn("failed to persist settings change", "error", err)
		}
	})
	interval := c.interval
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.IsInitialized() {
					continue
				}
				if err := c.PersistSettings(); err != nil {
					c.logger.Warn("autosave failed", "error", err)
				}
			}
		}
	}()
}

// stop ends the autosave loop and the settings subscription
func (c *Coordinator) stop() {
	c.mu.Lock()
	cancel, done, unsubscribe := c.stopAutosave, c.autosaveDone, c.unsubscribe
	c.stopAutosave, c.autosaveDone, c.unsubscribe = nil, nil, nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// Close stops autosave and persists one last time
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasInitialized := c.initialized
	c.mu.Unlock()

	c.stop()
	if !wasInitialized {
		return nil
	}
	return c.PersistSettings()
}
