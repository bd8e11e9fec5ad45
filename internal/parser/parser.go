package parser

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sokinpui/livepad/model"
)

var pathInHintRegex = regexp.MustCompile("`([^`\n]+)`")

// HintPath returns the first backquoted path in a hint, if any.
func HintPath(hint string) string {
	m := pathInHintRegex.FindStringSubmatch(hint)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// BlockLanguage resolves which preview language a block targets, looking at
// the fence info first and the hinted file name second.
func BlockLanguage(block CodeBlock) (model.Language, bool) {
	switch block.Lang {
	case "html", "htm":
		return model.LangHTML, true
	case "css":
		return model.LangCSS, true
	case "js", "javascript":
		return model.LangJS, true
	}
	if path := HintPath(block.Hint); path != "" {
		switch lang, _ := model.LanguageFor(filepath.Base(path)); lang {
		case model.LangHTML, model.LangCSS, model.LangJS:
			return lang, true
		}
	}
	return "", false
}

// ExtractProposal reads an edit proposal from a markdown reply: the first
// html, css and js blocks become patches and the prose the explanation. It
// reports false when the reply holds no usable block.
func ExtractProposal(source []byte) (model.EditProposal, bool) {
	doc, err := Parse(source)
	if err != nil {
		return model.EditProposal{}, false
	}

	proposal := model.EditProposal{Explanation: doc.Prose}
	found := false
	for _, block := range doc.Blocks {
		lang, ok := BlockLanguage(block)
		if !ok {
			continue
		}
		content := block.Content
		var slot **string
		switch lang {
		case model.LangHTML:
			slot = &proposal.HTML
		case model.LangCSS:
			slot = &proposal.CSS
		case model.LangJS:
			slot = &proposal.JS
		}
		if *slot == nil {
			*slot = &content
			found = true
		}
	}
	return proposal, found
}
