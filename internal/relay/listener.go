package relay

import (
	"sync"

	"go.uber.org/zap"
)

// Listener verifies relayed messages against the current sandbox and appends
// console entries to a LogStore.
type Listener struct {
	store *LogStore
	log   *zap.Logger

	mu       sync.RWMutex
	expected Source
}

// NewListener returns a Listener that accepts nothing until Expect is called.
func NewListener(store *LogStore, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{store: store, log: log}
}

// Expect sets the only sender whose messages are accepted.
func (l *Listener) Expect(src Source) {
	l.mu.Lock()
	l.expected = src
	l.mu.Unlock()
}

// Expected returns the sender currently accepted.
func (l *Listener) Expected() Source {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.expected
}

// Handle processes one envelope and reports whether an entry was appended.
// Messages from any other sender are dropped without surfacing an error.
func (l *Listener) Handle(env Envelope) bool {
	expected := l.Expected()
	if expected.Zero() || env.Source != expected {
		l.log.Debug("dropping relay message from unexpected sender",
			zap.String("target", env.Source.Target),
			zap.String("binding", env.Source.Binding))
		return false
	}

	msg, err := Decode(env.Payload)
	if err != nil {
		l.log.Debug("dropping undecodable relay message", zap.Error(err))
		return false
	}
	if msg.MessageKind != KindConsoleLog {
		return false
	}
	if !msg.Payload.Kind.Valid() {
		l.log.Debug("dropping relay message with unknown kind", zap.String("kind", string(msg.Payload.Kind)))
		return false
	}

	l.store.Append(msg.Payload.Entry())
	return true
}
