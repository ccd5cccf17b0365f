package render

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogo/chatsync/internal/config"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 80, opts.Width)
	assert.Equal(t, "dark", opts.Style)
	assert.True(t, opts.PreserveNewLines)

	chained := opts.WithWidth(100).WithStyle("light")
	assert.Equal(t, 100, chained.Width)
	assert.Equal(t, "light", chained.Style)
	assert.Equal(t, 80, opts.Width)
}

func TestMarkdown(t *testing.T) {
	ClearCache()
	opts := DefaultOptions().WithStyle("notty")

	out, err := Markdown("# Title\n\nSome **bold** text", opts)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.Equal(t, 1, CacheSize())

	_, err = Markdown("again", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, CacheSize())

	_, err = Markdown("wider", opts.WithWidth(120))
	require.NoError(t, err)
	assert.Equal(t, 2, CacheSize())
}

func TestRendererCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := newRendererCache(2)
	base := DefaultOptions().WithStyle("notty")

	first, err := cache.get(base.WithWidth(40))
	require.NoError(t, err)
	_, err = cache.get(base.WithWidth(50))
	require.NoError(t, err)

	again, err := cache.get(base.WithWidth(40))
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = cache.get(base.WithWidth(60))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.size())
	assert.Contains(t, cache.entries, base.WithWidth(40))
	assert.NotContains(t, cache.entries, base.WithWidth(50))
}

func TestRendererCache_DoesNotCacheFailures(t *testing.T) {
	cache := newRendererCache(2)

	_, err := cache.get(DefaultOptions().WithStyle("/does/not/exist.json"))
	assert.Error(t, err)
	assert.Zero(t, cache.size())
}

func TestMarkdown_Concurrent(t *testing.T) {
	opts := DefaultOptions().WithStyle("notty")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := Markdown("- item one\n- item two", opts)
			assert.NoError(t, err)
			assert.Contains(t, out, "item two")
		}()
	}
	wg.Wait()
}

func TestMarkdownOrPlain_FallsBack(t *testing.T) {
	opts := DefaultOptions().WithStyle("/does/not/exist.json")
	assert.Equal(t, "raw **text**", MarkdownOrPlain("raw **text**", opts))
}

func TestOptionsFromConfig(t *testing.T) {
	t.Setenv("GLAMOUR_STYLE", "")

	opts := OptionsFromConfig(config.MarkdownConfig{Style: "light"}, 100)
	assert.Equal(t, "light", opts.Style)
	assert.Equal(t, 100, opts.Width)

	opts = OptionsFromConfig(config.MarkdownConfig{Width: 60}, 100)
	assert.Equal(t, "dark", opts.Style)
	assert.Equal(t, 60, opts.Width)

	opts = OptionsFromConfig(config.MarkdownConfig{}, 0)
	assert.Equal(t, 80, opts.Width)

	t.Setenv("GLAMOUR_STYLE", "notty")
	assert.Equal(t, "notty", OptionsFromConfig(config.MarkdownConfig{Style: "light"}, 0).Style)
}
