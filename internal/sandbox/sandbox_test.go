package sandbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/livepad/internal/relay"
	"github.com/sokinpui/livepad/model"
)

func TestNewBindingName(t *testing.T) {
	a, b := NewBindingName(), NewBindingName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, BindingPrefix))
	assert.NotContains(t, a, "-")
}

func TestCloseWithoutStart(t *testing.T) {
	s := New(Config{}, relay.NewListener(relay.NewLogStore(nil), nil), relay.NewLogStore(nil), nil)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Load(context.Background(), nil), ErrClosed)
	assert.True(t, s.Source().Zero())
}

func chrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("chrome not installed")
	}
	return bin
}

func TestLoadRelaysConsole(t *testing.T) {
	bin := chrome(t)
	store := relay.NewLogStore(nil)
	s := New(Config{Bin: bin}, relay.NewListener(store, nil), store, nil)
	defer s.Close()

	files := []model.File{
		{Name: "index.html", Content: "<p id=\"x\"></p>", Language: model.LangHTML},
		{Name: "script.js", Content: "console.warn('x', 1n);\n" +
			"const loop = {}; loop.self = loop; console.log(loop);\n" +
			"console.info(new Error('boom'));\n" +
			"Promise.reject(new Error('late'));", Language: model.LangJS},
	}
	require.NoError(t, s.Load(context.Background(), files))
	first := s.Source()
	assert.False(t, first.Zero())

	require.Eventually(t, func() bool { return store.Len() >= 4 }, 10*time.Second, 50*time.Millisecond)
	entries := store.Entries()
	assert.Equal(t, model.LogWarn, entries[0].Kind)
	assert.JSONEq(t, `"x"`, string(entries[0].Data[0]))
	assert.JSONEq(t, `"1n"`, string(entries[0].Data[1]))

	assert.Equal(t, model.LogLog, entries[1].Kind)
	assert.JSONEq(t, `"[Unserializable Object]"`, string(entries[1].Data[0]))

	assert.Equal(t, model.LogInfo, entries[2].Kind)
	var boom struct {
		IsError bool   `json:"isError"`
		Message string `json:"message"`
		Stack   string `json:"stack"`
	}
	require.NoError(t, json.Unmarshal(entries[2].Data[0], &boom))
	assert.True(t, boom.IsError)
	assert.Equal(t, "boom", boom.Message)
	assert.NotEmpty(t, boom.Stack)

	assert.Equal(t, model.LogError, entries[3].Kind)

	require.NoError(t, s.Load(context.Background(), files[:1]))
	assert.NotEqual(t, first, s.Source())
	assert.Zero(t, store.Len())
}
