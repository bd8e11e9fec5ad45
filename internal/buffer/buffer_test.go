package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionAt(t *testing.T) {
	text := "ab\ncdé\n\nf"
	tests := []struct {
		offset int
		want   Position
	}{
		{0, Position{0, 0}},
		{2, Position{0, 2}},
		{3, Position{1, 0}},
		{6, Position{1, 3}},
		{7, Position{2, 0}},
		{8, Position{3, 0}},
		{9, Position{3, 1}},
		{100, Position{3, 1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PositionAt(text, tt.offset), "offset %d", tt.offset)
		if tt.offset <= 9 {
			assert.Equal(t, tt.offset, OffsetAt(text, tt.want), "position %+v", tt.want)
		}
	}
}

func TestOffsetAtClamps(t *testing.T) {
	text := "ab\ncd"
	assert.Equal(t, 2, OffsetAt(text, Position{Line: 0, Col: 10}))
	assert.Equal(t, 5, OffsetAt(text, Position{Line: 9, Col: 0}))
}

func TestAdvance(t *testing.T) {
	assert.Equal(t, Position{0, 3}, Advance(Position{0, 1}, "xy"))
	assert.Equal(t, Position{2, 1}, Advance(Position{0, 5}, "a\n\nb"))
}

func TestMemoryApplyEdits(t *testing.T) {
	m := NewMemory("hello world")
	changes := 0
	cancel := m.OnChange(func() { changes++ })

	text, _ := m.Text()
	r := RangeFor(text, 6, 11)
	require.NoError(t, m.ApplyEdits([]Edit{{Range: r}}))
	got, _ := m.Text()
	assert.Equal(t, "hello ", got)

	pos := r.Start
	for _, ch := range "there" {
		require.NoError(t, m.ApplyEdits([]Edit{{Range: Range{pos, pos}, Text: string(ch)}}))
		pos = Advance(pos, string(ch))
	}
	got, _ = m.Text()
	assert.Equal(t, "hello there", got)
	assert.Equal(t, 6, changes)

	cancel()
	require.NoError(t, m.SetText("other"))
	assert.Equal(t, 6, changes)
}

func TestMemoryMultiline(t *testing.T) {
	m := NewMemory("<p>\n  a\n</p>")
	text, _ := m.Text()
	r := RangeFor(text, 6, 7)
	require.NoError(t, m.ApplyEdits([]Edit{{Range: r, Text: "b\n  c"}}))
	got, _ := m.Text()
	assert.Equal(t, "<p>\n  b\n  c\n</p>", got)
}

func TestMemoryViewStateRoundTrip(t *testing.T) {
	m := NewMemory("line one\nline two")
	require.NoError(t, m.Select(Range{Position{1, 0}, Position{1, 4}}))
	state, err := m.ViewState()
	require.NoError(t, err)

	require.NoError(t, m.Select(Range{}))
	require.NoError(t, m.RestoreViewState(state))
	got, _ := m.ViewState()
	assert.Equal(t, state, got)
}

func TestMemorySetTextSameContentDoesNotNotify(t *testing.T) {
	m := NewMemory("x")
	changes := 0
	m.OnChange(func() { changes++ })
	require.NoError(t, m.SetText("x"))
	assert.Zero(t, changes)
}

func TestByteCol(t *testing.T) {
	assert.Equal(t, 0, byteCol([]byte("héllo"), 0))
	assert.Equal(t, 3, byteCol([]byte("héllo"), 2))
	assert.Equal(t, 6, byteCol([]byte("héllo"), 99))
}
