package ai

import (
	"fmt"
	"strings"

	"github.com/sokinpui/livepad/model"
)

const editInstruction = `You are an expert web developer working on a small project made of one HTML
document, one CSS stylesheet and one JavaScript file that run together in a
live preview.

Reply with a JSON object:
- "explanation": a short description of what you changed and why.
- "html", "css", "js": the COMPLETE new content of that file. Include a field
  only when that file changes. Never return partial files or diffs.

The HTML is the body of the page. Do not add <html>, <head> or <body> tags and
do not link the stylesheet or script; they are injected automatically.`

const searchInstruction = `Answer the question using up to date information from the web. Be concise and
cite your sources.`

func editPrompt(req EditRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current HTML:\n```html\n%s\n```\n\n", req.HTML)
	fmt.Fprintf(&b, "Current CSS:\n```css\n%s\n```\n\n", req.CSS)
	fmt.Fprintf(&b, "Current JavaScript:\n```js\n%s\n```\n\n", req.JS)
	fmt.Fprintf(&b, "Request:\n%s\n", req.Prompt)
	return b.String()
}

var actionPrompts = map[Action]string{
	ActionExplain:  "Explain what the following %s code does, step by step.",
	ActionBugs:     "Find bugs and potential problems in the following %s code. For each one, say where it is and how to fix it.",
	ActionRefactor: "Refactor the following %s code for readability and maintainability. Return the refactored code in a fenced block followed by a short summary of the changes.",
	ActionComment:  "Add clear, concise comments to the following %s code. Return the complete commented code in a fenced block.",
}

func snippetPrompt(code string, lang model.Language, action Action) string {
	name := string(lang)
	if name == "" {
		name = "source"
	}
	return fmt.Sprintf(actionPrompts[action], name) + "\n\n```" + string(lang) + "\n" + code + "\n```\n"
}
