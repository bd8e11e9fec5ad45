// Package preview synthesizes the single document loaded into the sandbox.
package preview

import (
	"strings"
	"time"

	"github.com/sokinpui/livepad/model"
)

// RebuildDelay is the quiet period after the last edit before the sandbox
// is rebuilt.
const RebuildDelay = 300 * time.Millisecond

// Placeholder replaces the markup when the project has no HTML file.
const Placeholder = "<!-- No HTML file found. Create an index.html to see a preview. -->"

// Options controls the parts of the document that do not come from files.
type Options struct {
	// Instrumentation is injected before the markup. Usually relay.Snippet.
	Instrumentation string
	// Title defaults to "Preview".
	Title string
}

// Sources are the files a preview is built from.
type Sources struct {
	HTML, CSS, JS *model.File
}

// Select picks the first html, css and js file from files.
func Select(files []model.File) Sources {
	var s Sources
	for i := range files {
		f := &files[i]
		lang := f.Language
		if lang == "" {
			lang, _ = model.LanguageFor(f.Name)
		}
		switch lang {
		case model.LangHTML:
			if s.HTML == nil {
				s.HTML = f
			}
		case model.LangCSS:
			if s.CSS == nil {
				s.CSS = f
			}
		case model.LangJS:
			if s.JS == nil {
				s.JS = f
			}
		}
	}
	return s
}

// Build returns the document source for files. Styles and instrumentation
// precede the markup and the user script follows it.
func Build(files []model.File, opts Options) string {
	src := Select(files)
	title := opts.Title
	if title == "" {
		title = "Preview"
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(escapeText(title))
	b.WriteString("</title>\n<style>\n")
	if src.CSS != nil {
		b.WriteString(escapeStyle(src.CSS.Content))
	}
	b.WriteString("\n</style>\n")
	if opts.Instrumentation != "" {
		b.WriteString("<script>\n")
		b.WriteString(EscapeScript(opts.Instrumentation))
		b.WriteString("\n</script>\n")
	}
	b.WriteString("</head>\n<body>\n")
	if src.HTML != nil {
		b.WriteString(src.HTML.Content)
	} else {
		b.WriteString(Placeholder)
	}
	b.WriteString("\n<script>\n")
	if src.JS != nil {
		b.WriteString(EscapeScript(src.JS.Content))
	}
	b.WriteString("\n</script>\n</body>\n</html>\n")
	return b.String()
}

// EscapeScript keeps script text from closing its enclosing element early.
func EscapeScript(s string) string {
	return replaceFold(s, "</script", `<\/script`)
}

func escapeStyle(s string) string {
	return replaceFold(s, "</style", `<\/style`)
}

func escapeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// replaceFold replaces ASCII case-insensitive matches of old, which must be
// lower case, keeping the original casing after the slash.
func replaceFold(s, old, repl string) string {
	lower := asciiLower(s)
	if !strings.Contains(lower, old) {
		return s
	}
	var b strings.Builder
	i := 0
	for {
		j := strings.Index(lower[i:], old)
		if j < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		start := i + j
		b.WriteString(s[i:start])
		// Keep the tag name as written; only the slash is escaped.
		b.WriteString(repl[:3])
		b.WriteString(s[start+2 : start+len(old)])
		i = start + len(old)
	}
}

// asciiLower lowers only ASCII letters so byte offsets stay aligned with s.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
