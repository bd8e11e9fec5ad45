package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sokinpui/livepad/model"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	t.Cleanup(func() { Out = prev })
	return &buf
}

func TestConfirm(t *testing.T) {
	capture(t)
	assert.True(t, Confirm(strings.NewReader("y\n"), "overwrite?"))
	assert.True(t, Confirm(strings.NewReader(" YES \n"), "overwrite?"))
	assert.False(t, Confirm(strings.NewReader("\n"), "overwrite?"))
	assert.False(t, Confirm(strings.NewReader(""), "overwrite?"))
}

func TestPrintSummary(t *testing.T) {
	out := capture(t)
	PrintSummary(model.Summary{
		Explanation: "Made it blue.",
		Modified:    []string{"style.css"},
		Failed:      []string{"index.html"},
		Message:     "1 file(s) updated",
	})
	s := out.String()
	assert.Contains(t, s, "Made it blue.")
	assert.Contains(t, s, "style.css")
	assert.Contains(t, s, "index.html")
	assert.Contains(t, s, "1 file(s) updated")

	out.Reset()
	PrintSummary(model.Summary{})
	assert.Contains(t, out.String(), "No files were updated.")
}

func TestPrintSummaryRendersMarkdown(t *testing.T) {
	out := capture(t)
	prev := MarkdownStyle
	MarkdownStyle = "notty"
	t.Cleanup(func() { MarkdownStyle = prev })

	PrintSummary(model.Summary{Explanation: "# Sources\n\nUse grid."})
	s := out.String()
	assert.Contains(t, s, "Use grid.")
	assert.NotContains(t, s, "# Sources\n")
}
