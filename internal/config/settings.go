package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/storage"
)

// LoadSettings reads the persisted settings record and overlays every
// well-formed field onto defaults. Missing, corrupt or mistyped fields are
// ignored; only a storage read failure is returned as an error.
func LoadSettings(kv storage.KV, defaults models.PersistedSettings) (models.PersistedSettings, error) {
	settings := defaults

	raw, ok, err := kv.Get(models.SettingsStorageKey)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}
	if !ok || raw == "" {
		return settings, nil
	}

	if !gjson.Valid(raw) {
		slog.Warn("ignoring corrupt settings record", "key", models.SettingsStorageKey)
		return settings, nil
	}

	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		slog.Warn("ignoring settings record that is not an object", "key", models.SettingsStorageKey)
		return settings, nil
	}

	if v := parsed.Get("selectedModel"); v.Type == gjson.String && v.String() != "" {
		settings.SelectedModel = v.String()
	}

	if v := parsed.Get("historyLimit"); v.Type == gjson.Number && v.Int() > 0 {
		settings.HistoryLimit = int(v.Int())
	}

	if v := parsed.Get("selectedTemplate"); v.IsObject() {
		var tmpl models.PromptTemplate
		if err := json.Unmarshal([]byte(v.Raw), &tmpl); err == nil {
			settings.SelectedTemplate = &tmpl
		}
	} else if v.Type == gjson.Null {
		settings.SelectedTemplate = nil
	}

	if ts, ok := parseSyncTime(parsed.Get("lastSyncTime")); ok {
		settings.LastSyncTime = ts
	}

	return settings, nil
}

// SaveSettings writes the settings record under its single storage key
func SaveSettings(kv storage.KV, settings models.PersistedSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := kv.Set(models.SettingsStorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// parseSyncTime accepts RFC 3339 strings and epoch milliseconds
func parseSyncTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		ts, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	case gjson.Number:
		if v.Int() <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(v.Int()), true
	default:
		return time.Time{}, false
	}
}
