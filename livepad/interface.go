package livepad

import (
	"context"
	"errors"
	"fmt"

	"github.com/sokinpui/livepad/internal/animate"
	"github.com/sokinpui/livepad/internal/fs"
	"github.com/sokinpui/livepad/internal/parser"
	"github.com/sokinpui/livepad/internal/store"
)

// ErrNoCodeBlocks is returned by Apply when content holds no html, css or js
// block.
var ErrNoCodeBlocks = errors.New("no html, css or js code blocks found")

// Config for using livepad as a library.
type Config struct {
	// Dir is the project directory. Defaults to the current directory.
	Dir string
	// Update the project without writing files to disk.
	Buffer bool
}

// Apply parses the given markdown content and applies its html, css and js
// blocks to the first file of each language in the project directory.
// It returns a summary of the operations in a map.
func Apply(content string, config Config) (map[string][]string, error) {
	ctx := context.Background()
	dir, err := fs.NewDir(config.Dir)
	if err != nil {
		return nil, err
	}
	proposal, ok := parser.ExtractProposal([]byte(content))
	if !ok {
		return nil, ErrNoCodeBlocks
	}
	files, _, err := dir.Import()
	if err != nil {
		return nil, err
	}

	applier := animate.New(nil)
	applier.NoAnimation = true
	session, err := NewSession(ctx, Options{
		Settings:    store.NewSettings(store.NewMemory(), nil),
		Editor:      NewMemoryEditor(),
		Files:       files,
		Dir:         dir,
		NoSave:      config.Buffer,
		Applier:     applier,
		SettleDelay: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize livepad session: %w", err)
	}
	actions := dir.FileActions(session.Project().Files())

	summary, err := session.ApplyProposal(ctx, proposal)
	session.Close()
	if err != nil {
		return nil, err
	}

	result := map[string][]string{
		"Created":  {},
		"Modified": {},
		"Failed":   summary.Failed,
	}
	for _, name := range summary.Modified {
		if actions[name] == "create" && !config.Buffer {
			result["Created"] = append(result["Created"], name)
		} else {
			result["Modified"] = append(result["Modified"], name)
		}
	}
	return result, nil
}
