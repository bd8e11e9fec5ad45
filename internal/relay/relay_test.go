package relay

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sokinpui/livepad/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const warnMessage = `{"messageKind":"CONSOLE_LOG","payload":{"kind":"warn","data":["x"],"timestamp":"2024-01-01T00:00:00Z"}}`

var sandbox = Source{Target: "page-1", Binding: "__livepad_a"}

func newListener() (*Listener, *LogStore) {
	store := NewLogStore(nil)
	l := NewListener(store, nil)
	l.Expect(sandbox)
	return l, store
}

func TestListenerAcceptsExpectedSender(t *testing.T) {
	l, store := newListener()

	assert.True(t, l.Handle(Envelope{Source: sandbox, Payload: warnMessage}))

	entries := store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogWarn, entries[0].Kind)
	assert.Equal(t, "2024-01-01T00:00:00Z", entries[0].Timestamp)
	require.Len(t, entries[0].Data, 1)
	assert.JSONEq(t, `"x"`, string(entries[0].Data[0]))
}

func TestListenerDropsOtherSenders(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"other page", Source{Target: "page-2", Binding: sandbox.Binding}},
		{"stale binding", Source{Target: sandbox.Target, Binding: "__livepad_old"}},
		{"no source", Source{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, store := newListener()
			assert.False(t, l.Handle(Envelope{Source: tt.src, Payload: warnMessage}))
			assert.Zero(t, store.Len())
		})
	}
}

func TestListenerWithoutExpectationDropsEverything(t *testing.T) {
	store := NewLogStore(nil)
	l := NewListener(store, nil)
	assert.False(t, l.Handle(Envelope{Source: Source{}, Payload: warnMessage}))
	assert.Zero(t, store.Len())
}

func TestListenerIgnoresOtherMessages(t *testing.T) {
	payloads := []string{
		`{"messageKind":"RESIZE","payload":{"kind":"log","data":[],"timestamp":""}}`,
		`{"messageKind":"CONSOLE_LOG","payload":{"kind":"trace","data":[],"timestamp":""}}`,
		`not json`,
	}
	for _, p := range payloads {
		l, store := newListener()
		assert.False(t, l.Handle(Envelope{Source: sandbox, Payload: p}), p)
		assert.Zero(t, store.Len())
	}
}

func TestListenerFollowsNewGeneration(t *testing.T) {
	l, store := newListener()
	next := Source{Target: "page-2", Binding: "__livepad_b"}
	l.Expect(next)

	assert.False(t, l.Handle(Envelope{Source: sandbox, Payload: warnMessage}))
	assert.True(t, l.Handle(Envelope{Source: next, Payload: warnMessage}))
	assert.Equal(t, 1, store.Len())
}

func TestLogStoreOrderAndClear(t *testing.T) {
	store := NewLogStore(nil)
	events, cancel := store.Subscribe()
	defer cancel()

	store.Append(model.LogEntry{Kind: model.LogLog, Timestamp: "1"})
	store.Append(model.LogEntry{Kind: model.LogError, Timestamp: "2"})

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].Timestamp)
	assert.Equal(t, "2", entries[1].Timestamp)

	store.Clear()
	assert.Zero(t, store.Len())

	assert.Equal(t, "1", (<-events).Entry.Timestamp)
	assert.Equal(t, "2", (<-events).Entry.Timestamp)
	assert.True(t, (<-events).Cleared)
}

func TestLogStoreDropsForSlowSubscribers(t *testing.T) {
	store := NewLogStore(nil)
	store.depth = 1
	events, cancel := store.Subscribe()

	store.Append(model.LogEntry{Timestamp: "1"})
	store.Append(model.LogEntry{Timestamp: "2"})
	assert.Equal(t, 2, store.Len())

	cancel()
	cancel()
	var got []string
	for ev := range events {
		got = append(got, ev.Entry.Timestamp)
	}
	assert.Equal(t, []string{"1"}, got)
}

func TestSnippet(t *testing.T) {
	js := Snippet("__livepad_abc")
	assert.Contains(t, js, `var bindingName = "__livepad_abc";`)
	assert.NotContains(t, js, bindingPlaceholder)
	assert.Contains(t, js, "CONSOLE_LOG")
	assert.Contains(t, js, "[Unserializable Object]")
	assert.Contains(t, js, "unhandledrejection")
	for _, kind := range []string{"log", "warn", "error", "info", "debug"} {
		assert.True(t, strings.Contains(js, `"`+kind+`"`), kind)
	}
}

func TestDecodeErrorData(t *testing.T) {
	raw := `{"messageKind":"CONSOLE_LOG","payload":{"kind":"error","data":[{"isError":true,"message":"boom","stack":"at x"},"12n"],"timestamp":"t"}}`
	msg, err := Decode(raw)
	require.NoError(t, err)

	var e struct {
		IsError bool   `json:"isError"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload.Data[0], &e))
	assert.True(t, e.IsError)
	assert.Equal(t, "boom", e.Message)
	assert.JSONEq(t, `"12n"`, string(msg.Payload.Data[1]))

	_, err = Decode("{")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
