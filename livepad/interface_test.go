package livepad_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/livepad/livepad"
)

const reply = "Made the heading blue.\n\n```css\nh1 { color: blue; }\n```\n"

func TestApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("h1 {}"), 0o644))

	result, err := livepad.Apply(reply, livepad.Config{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"style.css"}, result["Modified"])
	assert.Empty(t, result["Created"])
	assert.Empty(t, result["Failed"])

	data, err := os.ReadFile(filepath.Join(dir, "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "h1 { color: blue; }\n", string(data))
}

func TestApplyCreatesStarterFiles(t *testing.T) {
	dir := t.TempDir()

	result, err := livepad.Apply(reply, livepad.Config{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"style.css"}, result["Created"])

	for _, name := range []string{"index.html", "style.css", "script.js"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestApplyBufferOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("h1 {}"), 0o644))

	result, err := livepad.Apply(reply, livepad.Config{Dir: dir, Buffer: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"style.css"}, result["Modified"])

	data, err := os.ReadFile(filepath.Join(dir, "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "h1 {}", string(data))
}

func TestApplyWithoutCodeBlocks(t *testing.T) {
	_, err := livepad.Apply("just prose", livepad.Config{Dir: t.TempDir()})
	assert.ErrorIs(t, err, livepad.ErrNoCodeBlocks)
}
