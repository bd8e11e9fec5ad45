package model

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Language identifies the kind of content a file holds. It is derived from
// the file extension.
type Language string

const (
	LangHTML Language = "html"
	LangCSS  Language = "css"
	LangJS   Language = "js"
	LangTS   Language = "ts"
	LangJSON Language = "json"
	LangMD   Language = "md"
	LangSCSS Language = "scss"
	LangXML  Language = "xml"
	LangSVG  Language = "svg"
	LangTXT  Language = "txt"
	LangYAML Language = "yaml"
)

// SupportedExtensions is the closed set of extensions a project may hold.
var SupportedExtensions = []string{"html", "css", "js", "ts", "json", "md", "scss", "xml", "svg", "txt", "yaml"}

// LanguageFor returns the language for a file name and whether the
// extension is supported.
func LanguageFor(name string) (Language, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return Language(ext), true
		}
	}
	return "", false
}

// File is a single project file. Name is its identity.
type File struct {
	Name     string   `json:"name"`
	Content  string   `json:"content"`
	Language Language `json:"language"`
}

// LogKind is the severity of a relayed console call.
type LogKind string

const (
	LogLog   LogKind = "log"
	LogWarn  LogKind = "warn"
	LogError LogKind = "error"
	LogInfo  LogKind = "info"
	LogDebug LogKind = "debug"
)

// Valid reports whether k is one of the five relayed severities.
func (k LogKind) Valid() bool {
	switch k {
	case LogLog, LogWarn, LogError, LogInfo, LogDebug:
		return true
	}
	return false
}

// LogEntry is one console call captured inside the preview sandbox.
type LogEntry struct {
	Kind      LogKind           `json:"kind"`
	Data      []json.RawMessage `json:"data"`
	Timestamp string            `json:"timestamp"`
}

// EditProposal is the AI collaborator's suggestion. A nil field means the
// language was not changed.
type EditProposal struct {
	Explanation string  `json:"explanation"`
	HTML        *string `json:"html,omitempty"`
	CSS         *string `json:"css,omitempty"`
	JS          *string `json:"js,omitempty"`
}

// Compact drops language fields that hold only whitespace. Replies that
// fill every optional field would otherwise wipe untouched files.
func (p EditProposal) Compact() EditProposal {
	for _, v := range []**string{&p.HTML, &p.CSS, &p.JS} {
		if *v != nil && strings.TrimSpace(**v) == "" {
			*v = nil
		}
	}
	return p
}

// Patch returns the proposed content for a language, if any. Blank content
// counts as no change.
func (p EditProposal) Patch(lang Language) (string, bool) {
	var v *string
	switch lang {
	case LangHTML:
		v = p.HTML
	case LangCSS:
		v = p.CSS
	case LangJS:
		v = p.JS
	}
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", false
	}
	return *v, true
}

// Summary holds the results of an operation for display.
type Summary struct {
	Explanation string
	Modified    []string
	Failed      []string
	Message     string
}
