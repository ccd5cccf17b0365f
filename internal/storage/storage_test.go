package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(dir string) KV {
	t.Helper()
	return map[string]func(dir string) KV{
		BackendFile: func(dir string) KV {
			kv, err := Open(BackendFile, dir)
			require.NoError(t, err)
			return kv
		},
		BackendSQLite: func(dir string) KV {
			kv, err := Open(BackendSQLite, dir)
			require.NoError(t, err)
			return kv
		},
	}
}

func TestKV_SetGetDelete(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			kv := open(t.TempDir())
			defer kv.Close()

			_, ok, err := kv.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set("chat_settings", `{"historyLimit":30}`))
			v, ok, err := kv.Get("chat_settings")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"historyLimit":30}`, v)

			require.NoError(t, kv.Set("chat_settings", `{"historyLimit":5}`))
			v, _, _ = kv.Get("chat_settings")
			assert.Equal(t, `{"historyLimit":5}`, v)

			require.NoError(t, kv.Delete("chat_settings"))
			_, ok, err = kv.Get("chat_settings")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Delete("never-set"))
		})
	}
}

func TestKV_SurvivesReopen(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			first := open(dir)
			require.NoError(t, first.Set("k", "v"))
			require.NoError(t, first.Close())

			second := open(dir)
			defer second.Close()
			v, ok, err := second.Get("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		})
	}
}

func TestFileKV_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	kv, err := NewFileKV(path)
	require.NoError(t, err)

	_, _, err = kv.Get("k")
	assert.Error(t, err)

	// Writing replaces the corrupt file
	require.NoError(t, kv.Set("k", "v"))
	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.Error(t, err)
}
