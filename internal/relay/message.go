package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sokinpui/livepad/model"
)

// KindConsoleLog is the only message kind the host accepts.
const KindConsoleLog = "CONSOLE_LOG"

// ErrMalformedMessage is returned for messages that do not decode.
var ErrMalformedMessage = errors.New("malformed relay message")

// Source identifies the execution context a message came from. Target is the
// sandbox page and Binding the channel name handed to that page's generation.
type Source struct {
	Target  string
	Binding string
}

// Zero reports whether no source is set.
func (s Source) Zero() bool {
	return s == Source{}
}

// Envelope is a raw message together with its sender.
type Envelope struct {
	Source  Source
	Payload string
}

// Message is the decoded wire shape.
type Message struct {
	MessageKind string  `json:"messageKind"`
	Payload     Payload `json:"payload"`
}

// Payload is the body of a CONSOLE_LOG message.
type Payload struct {
	Kind      model.LogKind     `json:"kind"`
	Data      []json.RawMessage `json:"data"`
	Timestamp string            `json:"timestamp"`
}

// Decode parses a raw message.
func Decode(raw string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// Entry converts the payload into a log entry.
func (p Payload) Entry() model.LogEntry {
	data := p.Data
	if data == nil {
		data = []json.RawMessage{}
	}
	return model.LogEntry{Kind: p.Kind, Data: data, Timestamp: p.Timestamp}
}
