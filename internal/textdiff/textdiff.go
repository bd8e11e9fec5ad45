// Package textdiff computes the single-region difference between two texts.
//
// The result is the common prefix, the common suffix and the text that
// replaces everything in between. It is not a general edit script: two
// disjoint changes collapse into one region spanning both.
package textdiff

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Result describes how to turn old into new. Prefix and Suffix count runes.
// old[:Prefix] and old[len(old)-Suffix:] are kept; the runes in between are
// replaced by Replacement.
type Result struct {
	Prefix      int
	Suffix      int
	Replacement string
}

// Compute returns the prefix/suffix split between old and new.
// Prefix+Suffix never exceeds the rune length of either input.
func Compute(old, new string) Result {
	a := []rune(old)
	b := []rune(new)

	limit := min(len(a), len(b))
	prefix := 0
	for prefix < limit && a[prefix] == b[prefix] {
		prefix++
	}

	// The suffix scan may only look at what the prefix left over, otherwise
	// repeated patterns ("aaa" -> "aaaa") would be counted twice.
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	return Result{
		Prefix:      prefix,
		Suffix:      suffix,
		Replacement: string(b[prefix : len(b)-suffix]),
	}
}

// RemovedRange returns the rune offsets [start, end) of old that the result
// replaces.
func (r Result) RemovedRange(old string) (start, end int) {
	n := len([]rune(old))
	return r.Prefix, n - r.Suffix
}

// IsNoop reports whether applying the result to old leaves it unchanged.
func (r Result) IsNoop(old string) bool {
	start, end := r.RemovedRange(old)
	return start == end && r.Replacement == ""
}

// Apply replaces the middle region of old with the replacement text.
func (r Result) Apply(old string) string {
	a := []rune(old)
	start, end := r.Prefix, len(a)-r.Suffix
	out := make([]rune, 0, start+len(r.Replacement)+r.Suffix)
	out = append(out, a[:start]...)
	out = append(out, []rune(r.Replacement)...)
	out = append(out, a[end:]...)
	return string(out)
}

// LineStat counts lines added and removed between old and new using a
// line-mode diff. It is used for reporting only.
func LineStat(old, new string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(old, new)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	if s[len(s)-1] != '\n' {
		n++
	}
	return n
}
