package render

import (
	"slices"
	"sync"

	"github.com/charmbracelet/glamour"
)

// maxCachedRenderers bounds the cache; every TUI resize produces a new width.
const maxCachedRenderers = 8

// cachedRenderer serializes use of one renderer.
// glamour.TermRenderer is not safe for concurrent Render calls.
type cachedRenderer struct {
	mu sync.Mutex
	r  *glamour.TermRenderer
}

func (c *cachedRenderer) render(content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r.Render(content)
}

// rendererCache keeps the most recently used renderers by option set
type rendererCache struct {
	mu      sync.Mutex
	entries map[Options]*cachedRenderer
	recent  []Options // least recently used first
	limit   int
}

func newRendererCache(limit int) *rendererCache {
	return &rendererCache{entries: make(map[Options]*cachedRenderer), limit: limit}
}

var renderers = newRendererCache(maxCachedRenderers)

func (c *rendererCache) get(opts Options) (*cachedRenderer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[opts]; ok {
		c.touch(opts)
		return entry, nil
	}

	// Failed builds are not cached, so a fixed style file is picked up
	r, err := createRenderer(opts)
	if err != nil {
		return nil, err
	}
	entry := &cachedRenderer{r: r}
	c.entries[opts] = entry
	c.recent = append(c.recent, opts)
	if len(c.recent) > c.limit {
		delete(c.entries, c.recent[0])
		c.recent = c.recent[1:]
	}
	return entry, nil
}

func (c *rendererCache) touch(opts Options) {
	if i := slices.Index(c.recent, opts); i >= 0 {
		c.recent = append(slices.Delete(c.recent, i, i+1), opts)
	}
}

func (c *rendererCache) clear() {
	c.mu.Lock()
	c.entries = make(map[Options]*cachedRenderer)
	c.recent = nil
	c.mu.Unlock()
}

func (c *rendererCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func createRenderer(opts Options) (*glamour.TermRenderer, error) {
	style := opts.Style
	if style == "" {
		style = "dark"
	}

	// WithStylePath accepts both standard style names and JSON files
	rendererOpts := []glamour.TermRendererOption{
		glamour.WithStylePath(style),
		glamour.WithWordWrap(opts.Width),
		glamour.WithEmoji(),
	}
	if opts.PreserveNewLines {
		rendererOpts = append(rendererOpts, glamour.WithPreservedNewLines())
	}

	return glamour.NewTermRenderer(rendererOpts...)
}

// ClearCache drops every cached renderer
func ClearCache() {
	renderers.clear()
}

// CacheSize returns the number of cached renderers
func CacheSize() int {
	return renderers.size()
}
