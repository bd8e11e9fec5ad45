// Package source finds the prompt text for a one-shot command.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/livepad/internal/ui"
)

// SourceProvider reads the prompt from an explicit value, piped stdin or the
// clipboard, in that order.
type SourceProvider struct {
	Stdin     io.Reader
	IsPiped   func() bool
	Clipboard func() (string, error)
}

// New returns a SourceProvider on the process stdin and system clipboard.
func New() *SourceProvider {
	return &SourceProvider{
		Stdin:     os.Stdin,
		IsPiped:   stdinPiped,
		Clipboard: clipboard.ReadAll,
	}
}

func stdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent returns explicit if set, otherwise stdin when piped, otherwise
// the clipboard. Empty content is returned as "".
func (sp *SourceProvider) GetContent(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if sp.IsPiped != nil && sp.IsPiped() {
		ui.Header("--- Reading prompt from stdin ---")
		content, err := io.ReadAll(sp.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	if sp.Clipboard == nil {
		return "", nil
	}
	ui.Header("--- Reading prompt from clipboard ---")
	content, err := sp.Clipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return strings.TrimSpace(content), nil
}

// WriteClipboard copies text to the system clipboard.
func WriteClipboard(text string) error {
	return clipboard.WriteAll(text)
}
