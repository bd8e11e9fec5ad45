package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sokinpui/livepad/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestImportExport(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>x</p>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tool.exe"), []byte("MZ"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub.css"), 0o755))

	d, err := NewDir(root)
	require.NoError(t, err)

	files, skipped, err := d.Import()
	require.NoError(t, err)
	assert.Equal(t, []model.File{{Name: "index.html", Content: "<p>x</p>", Language: model.LangHTML}}, files)
	assert.Equal(t, []string{"tool.exe"}, skipped)

	out := []model.File{
		{Name: "index.html", Content: "<p>x</p>"},
		{Name: "style.css", Content: "p{}"},
	}
	assert.Equal(t, map[string]string{"index.html": "modify", "style.css": "create"}, d.FileActions(out))

	written, err := d.Export(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"style.css"}, written)
	data, err := os.ReadFile(filepath.Join(root, "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "p{}", string(data))

	require.NoError(t, d.Remove("style.css"))
	require.NoError(t, d.Remove("style.css"))
}

func TestImportMissingDir(t *testing.T) {
	d, err := NewDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	files, _, err := d.Import()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPathStaysInRoot(t *testing.T) {
	d, err := NewDir("/tmp/project")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/project/a.js", d.Path("../../a.js"))
}

type change struct {
	name, content string
	removed       bool
}

func TestWatcherReportsExternalEdits(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root)
	require.NoError(t, err)

	var mu sync.Mutex
	var changes []change
	w := NewWatcher(d, func(name, content string, removed bool) {
		mu.Lock()
		changes = append(changes, change{name, content, removed})
		mu.Unlock()
	}, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	w.Remember("own.css", "a{}")
	_, err = d.Export([]model.File{{Name: "own.css", Content: "a{}"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "ext.js"), []byte("x()"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.bin"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) >= 1
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []change{{name: "ext.js", content: "x()"}}, changes)
}
