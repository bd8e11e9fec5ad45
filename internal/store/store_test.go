package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/livepad/model"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "state", "livepad.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "a", []byte("2")))
	require.NoError(t, s.Set(ctx, "b", nil))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, _ = s.Get(ctx, "a")
	assert.False(t, ok)
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.sqlite")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, NewSettings(s, nil).SetTheme(ctx, ThemeLight))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, ThemeLight, NewSettings(s, nil).Theme(ctx))
}

func TestSettingsDefaults(t *testing.T) {
	ctx := context.Background()
	set := NewSettings(NewMemory(), nil)
	fallback := []model.File{{Name: "index.html"}}

	assert.Equal(t, fallback, set.Files(ctx, fallback))
	assert.Equal(t, ThemeDark, set.Theme(ctx))
	assert.Equal(t, "", set.Credential(ctx))
}

func TestSettingsHealCorruption(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	set := NewSettings(kv, nil)
	fallback := []model.File{{Name: "index.html"}}

	require.NoError(t, kv.Set(ctx, KeyFiles, []byte("{not json")))
	require.NoError(t, kv.Set(ctx, KeyTheme, []byte(`"neon"`)))
	require.NoError(t, kv.Set(ctx, KeyCredential, []byte("42")))

	assert.Equal(t, fallback, set.Files(ctx, fallback))
	assert.Equal(t, ThemeDark, set.Theme(ctx))
	assert.Equal(t, "", set.Credential(ctx))
	assert.Empty(t, kv.Keys(), "corrupt values are discarded")
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	set := NewSettings(openTemp(t), nil)

	files := []model.File{{Name: "a.css", Content: "a{}", Language: model.LangCSS}}
	require.NoError(t, set.SaveFiles(ctx, files))
	assert.Equal(t, files, set.Files(ctx, nil))

	require.NoError(t, set.SaveFiles(ctx, nil))
	assert.Equal(t, []model.File{}, set.Files(ctx, files))

	require.NoError(t, set.SetCredential(ctx, "secret"))
	assert.Equal(t, "secret", set.Credential(ctx))
	require.NoError(t, set.SetCredential(ctx, ""))
	assert.Equal(t, "", set.Credential(ctx))
}
