// Package fs mirrors a project to a directory on disk and watches it for
// edits made outside livepad.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sokinpui/livepad/model"
)

// MaxFileSize bounds files read on import.
const MaxFileSize = 1 << 20

// Dir is a project directory. Only top-level files with a supported
// extension belong to the project.
type Dir struct {
	root string
}

// NewDir returns the directory at root, made absolute.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory.
func (d *Dir) Root() string { return d.root }

// Path returns the absolute path of a project file.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, filepath.Base(name))
}

// Import reads every supported file. Unsupported or oversized files are
// returned as skipped. A missing directory yields no files.
func (d *Dir) Import() (files []model.File, skipped []string, err error) {
	entries, err := os.ReadDir(d.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read project dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lang, ok := model.LanguageFor(name)
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() > MaxFileSize {
			skipped = append(skipped, name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.root, name))
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", name, err)
		}
		files = append(files, model.File{Name: name, Content: string(data), Language: lang})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, skipped, nil
}

// FileActions reports for each file whether exporting it creates or
// modifies a file on disk.
func (d *Dir) FileActions(files []model.File) map[string]string {
	actions := make(map[string]string, len(files))
	for _, f := range files {
		if _, err := os.Stat(d.Path(f.Name)); os.IsNotExist(err) {
			actions[f.Name] = "create"
		} else {
			actions[f.Name] = "modify"
		}
	}
	return actions
}

// Export writes files whose disk content differs and returns their names.
func (d *Dir) Export(files []model.File) ([]string, error) {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	var written []string
	for _, f := range files {
		path := d.Path(f.Name)
		if existing, err := os.ReadFile(path); err == nil && string(existing) == f.Content {
			continue
		}
		if err := writeFile(path, []byte(f.Content)); err != nil {
			return written, fmt.Errorf("write %s: %w", f.Name, err)
		}
		written = append(written, f.Name)
	}
	return written, nil
}

// Remove deletes a project file from disk. A missing file is not an error.
func (d *Dir) Remove(name string) error {
	if err := os.Remove(d.Path(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeFile replaces path through a temp file in the same directory.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".livepad-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
