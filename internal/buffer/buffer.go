// Package buffer defines the text buffer capability that edits are animated
// against, with an in-memory implementation and a Neovim-backed one.
package buffer

import (
	"strings"
	"unicode/utf8"
)

// Position is a zero-based line and column. Col counts runes.
type Position struct {
	Line int
	Col  int
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position
	End   Position
}

// Empty reports whether the range covers no text.
func (r Range) Empty() bool {
	return r.Start == r.End
}

// Edit replaces the text inside Range with Text.
type Edit struct {
	Range Range
	Text  string
}

// ViewState is an opaque snapshot of cursor and scroll position.
type ViewState any

// Buffer is the editing widget as seen by the patch applier.
type Buffer interface {
	Text() (string, error)
	SetText(text string) error
	ViewState() (ViewState, error)
	RestoreViewState(state ViewState) error
	ApplyEdits(edits []Edit) error
	Focus() error
	Reveal(r Range) error
	Select(r Range) error
	// OnChange registers fn to run after every content change, including
	// the buffer's own edits. The returned func unregisters it.
	OnChange(fn func()) (cancel func())
}

// PositionAt maps a rune offset in text to a line/column position.
// Offsets past the end clamp to the end of the text.
func PositionAt(text string, offset int) Position {
	var pos Position
	i := 0
	for _, r := range text {
		if i >= offset {
			break
		}
		if r == '\n' {
			pos.Line++
			pos.Col = 0
		} else {
			pos.Col++
		}
		i++
	}
	return pos
}

// OffsetAt maps a position back to a rune offset. Columns past the end of a
// line clamp to the line end; lines past the end clamp to the text end.
func OffsetAt(text string, pos Position) int {
	lines := strings.Split(text, "\n")
	if pos.Line >= len(lines) {
		return utf8.RuneCountInString(text)
	}
	offset := 0
	for i := 0; i < pos.Line; i++ {
		offset += utf8.RuneCountInString(lines[i]) + 1
	}
	return offset + min(pos.Col, utf8.RuneCountInString(lines[pos.Line]))
}

// RangeFor converts rune offsets [start, end) into a Range within text.
func RangeFor(text string, start, end int) Range {
	return Range{Start: PositionAt(text, start), End: PositionAt(text, end)}
}

// Advance returns the position after typing s at pos.
func Advance(pos Position, s string) Position {
	for _, r := range s {
		if r == '\n' {
			pos.Line++
			pos.Col = 0
		} else {
			pos.Col++
		}
	}
	return pos
}

// applyEdit applies a single edit to text. It is shared by the in-memory
// buffer and tests.
func applyEdit(text string, e Edit) string {
	start := OffsetAt(text, e.Range.Start)
	end := OffsetAt(text, e.Range.End)
	if end < start {
		start, end = end, start
	}
	runes := []rune(text)
	var b strings.Builder
	b.WriteString(string(runes[:start]))
	b.WriteString(e.Text)
	b.WriteString(string(runes[end:]))
	return b.String()
}
