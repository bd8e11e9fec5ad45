package relay

import (
	_ "embed"
	"encoding/json"
	"strings"
)

//go:embed snippet.js
var snippet string

const bindingPlaceholder = "__LIVEPAD_BINDING__"

// Snippet returns the instrumentation script that forwards console calls and
// uncaught errors through the named host binding.
func Snippet(bindingName string) string {
	quoted, _ := json.Marshal(bindingName)
	return strings.Replace(snippet, bindingPlaceholder, string(quoted), 1)
}
