package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/storage"
)

func newKV(t *testing.T) storage.KV {
	t.Helper()
	kv, err := storage.Open(storage.BackendFile, t.TempDir())
	require.NoError(t, err)
	return kv
}

func TestSettings_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	kv, err := storage.Open(storage.BackendFile, dir)
	require.NoError(t, err)

	sync := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	saved := models.PersistedSettings{
		SelectedModel: "m1",
		SelectedTemplate: &models.PromptTemplate{
			ID:      3,
			Name:    "Editor",
			Content: "You are a careful editor.",
		},
		HistoryLimit: 30,
		LastSyncTime: sync,
	}
	require.NoError(t, SaveSettings(kv, saved))

	// Fresh instance over the same directory
	fresh, err := storage.Open(storage.BackendFile, dir)
	require.NoError(t, err)

	loaded, err := LoadSettings(fresh, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "m1", loaded.SelectedModel)
	assert.Equal(t, 30, loaded.HistoryLimit)
	require.NotNil(t, loaded.SelectedTemplate)
	assert.Equal(t, int64(3), loaded.SelectedTemplate.ID)
	assert.Equal(t, "You are a careful editor.", loaded.SelectedTemplate.Content)
	assert.True(t, sync.Equal(loaded.LastSyncTime))
}

func TestLoadSettings_Missing(t *testing.T) {
	loaded, err := LoadSettings(newKV(t), models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), loaded)
}

func TestLoadSettings_Tolerant(t *testing.T) {
	defaults := models.DefaultSettings()

	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, s models.PersistedSettings)
	}{
		{
			name: "corrupt json",
			raw:  `{"selectedModel": "m1", `,
			check: func(t *testing.T, s models.PersistedSettings) {
				assert.Equal(t, defaults, s)
			},
		},
		{
			name: "not an object",
			raw:  `[1,2,3]`,
			check: func(t *testing.T, s models.PersistedSettings) {
				assert.Equal(t, defaults, s)
			},
		},
		{
			name: "partial record",
			raw:  `{"historyLimit": 30}`,
			check: func(t *testing.T, s models.PersistedSettings) {
				assert.Equal(t, 30, s.HistoryLimit)
				assert.Equal(t, defaults.SelectedModel, s.SelectedModel)
				assert.Nil(t, s.SelectedTemplate)
			},
		},
		{
			name: "wrong types are ignored field by field",
			raw:  `{"selectedModel": 5, "historyLimit": "many", "selectedTemplate": "x", "lastSyncTime": "yesterday"}`,
			check: func(t *testing.T, s models.PersistedSettings) {
				assert.Equal(t, defaults, s)
			},
		},
		{
			name: "unknown fields are ignored",
			raw:  `{"selectedModel": "m2", "theme": "dark"}`,
			check: func(t *testing.T, s models.PersistedSettings) {
				assert.Equal(t, "m2", s.SelectedModel)
			},
		},
		{
			name: "epoch millis sync time",
			raw:  `{"lastSyncTime": 1700000000000}`,
			check: func(t *testing.T, s models.PersistedSettings) {
				assert.Equal(t, int64(1700000000000), s.LastSyncTime.UnixMilli())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newKV(t)
			require.NoError(t, kv.Set(models.SettingsStorageKey, tt.raw))

			loaded, err := LoadSettings(kv, defaults)
			require.NoError(t, err)
			tt.check(t, loaded)
		})
	}
}
