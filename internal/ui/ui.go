// Package ui prints styled, line-oriented output for the non-interactive
// commands.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/livepad/model"
)

var (
	HeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	InfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	PathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	PromptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// Out is where messages go. Stdout is kept for command results.
var Out io.Writer = os.Stderr

// MarkdownStyle is the glamour style for explanations. Empty prints them raw.
var MarkdownStyle = ""

func printf(style lipgloss.Style, format string, a ...interface{}) {
	fmt.Fprintln(Out, style.Render(fmt.Sprintf(format, a...)))
}

func Header(format string, a ...interface{})  { printf(HeaderStyle, format, a...) }
func Info(format string, a ...interface{})    { printf(InfoStyle, format, a...) }
func Success(format string, a ...interface{}) { printf(SuccessStyle, format, a...) }
func Warning(format string, a ...interface{}) { printf(WarningStyle, format, a...) }
func Error(format string, a ...interface{})   { printf(ErrorStyle, format, a...) }

func Path(format string, a ...interface{}) {
	printf(PathStyle, "  "+format, a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptStyle.Render(fmt.Sprintf(format, a...))
}

// Confirm asks a yes/no question on in. Anything but "y" or "yes" is no.
func Confirm(in io.Reader, question string) bool {
	fmt.Fprint(Out, Prompt("%s (y/N): ", question))
	response, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.TrimSpace(strings.ToLower(response)) {
	case "y", "yes":
		return true
	}
	return false
}

// PrintSummary prints the outcome of an edit.
func PrintSummary(s model.Summary) {
	Header("\n--- Edit Summary ---")
	if s.Explanation != "" {
		fmt.Fprintln(Out, renderMarkdown(s.Explanation))
	}
	if len(s.Modified) == 0 && len(s.Failed) == 0 {
		Info("No files were updated.")
	}
	if len(s.Modified) > 0 {
		Success("Updated %d file(s):", len(s.Modified))
		for _, f := range s.Modified {
			Path("- %s", f)
		}
	}
	if len(s.Failed) > 0 {
		Error("Failed to update %d file(s):", len(s.Failed))
		for _, f := range s.Failed {
			Path("- %s", f)
		}
	}
	if s.Message != "" {
		Info(s.Message)
	}
}

func renderMarkdown(text string) string {
	if MarkdownStyle == "" {
		return text
	}
	out, err := glamour.Render(text, MarkdownStyle)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
