package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sokinpui/livepad/model"
)

const (
	KeyFiles      = "livepad.files"
	KeyTheme      = "livepad.theme"
	KeyCredential = "livepad.credential"
	KeyHistory    = "livepad.history"
)

// Theme is the display preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Settings reads and writes typed values. Values that fail to decode are
// deleted and the default returned, so corruption heals on the next write.
type Settings struct {
	kv  KV
	log *zap.Logger
}

// NewSettings wraps kv.
func NewSettings(kv KV, log *zap.Logger) *Settings {
	if log == nil {
		log = zap.NewNop()
	}
	return &Settings{kv: kv, log: log}
}

// Load decodes key into v. It reports false when the key is missing,
// unreadable or corrupt; corrupt values are removed.
func (s *Settings) Load(ctx context.Context, key string, v any) bool {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Warn("store read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.log.Warn("discarding corrupt stored value", zap.String("key", key), zap.Error(err))
		if delErr := s.kv.Delete(ctx, key); delErr != nil {
			s.log.Warn("store delete failed", zap.String("key", key), zap.Error(delErr))
		}
		return false
	}
	return true
}

// Save encodes v under key.
func (s *Settings) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, raw)
}

// Files returns the stored file collection, or fallback.
func (s *Settings) Files(ctx context.Context, fallback []model.File) []model.File {
	var files []model.File
	if !s.Load(ctx, KeyFiles, &files) || files == nil {
		return fallback
	}
	return files
}

// SaveFiles stores the file collection.
func (s *Settings) SaveFiles(ctx context.Context, files []model.File) error {
	if files == nil {
		files = []model.File{}
	}
	return s.Save(ctx, KeyFiles, files)
}

// Theme returns the stored theme, dark by default.
func (s *Settings) Theme(ctx context.Context) Theme {
	var t Theme
	if !s.Load(ctx, KeyTheme, &t) {
		return ThemeDark
	}
	if t != ThemeDark && t != ThemeLight {
		s.log.Warn("discarding unknown theme", zap.String("theme", string(t)))
		_ = s.kv.Delete(ctx, KeyTheme)
		return ThemeDark
	}
	return t
}

// SetTheme stores the theme.
func (s *Settings) SetTheme(ctx context.Context, t Theme) error {
	return s.Save(ctx, KeyTheme, t)
}

// Credential returns the stored API key, empty if none.
func (s *Settings) Credential(ctx context.Context) string {
	var key string
	s.Load(ctx, KeyCredential, &key)
	return key
}

// SetCredential stores the API key. An empty key removes it.
func (s *Settings) SetCredential(ctx context.Context, key string) error {
	if key == "" {
		return s.kv.Delete(ctx, KeyCredential)
	}
	return s.Save(ctx, KeyCredential, key)
}
