package relay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sokinpui/livepad/model"
)

// LogEvent is delivered to subscribers. Cleared is set when the store was
// emptied, otherwise Entry holds the appended entry.
type LogEvent struct {
	Cleared bool
	Entry   model.LogEntry
}

// LogStore is an append-only, insertion ordered console log.
type LogStore struct {
	log   *zap.Logger
	depth int

	mu      sync.Mutex
	entries []model.LogEntry
	subs    map[chan LogEvent]struct{}
}

// NewLogStore returns an empty store.
func NewLogStore(log *zap.Logger) *LogStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogStore{
		log:   log,
		depth: 256,
		subs:  make(map[chan LogEvent]struct{}),
	}
}

// Append adds an entry at the end of the log.
func (s *LogStore) Append(entry model.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.publish(LogEvent{Entry: entry})
}

// Clear removes every entry.
func (s *LogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.publish(LogEvent{Cleared: true})
}

// Entries returns a copy of the log.
func (s *LogStore) Entries() []model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *LogStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
// Slow subscribers miss events rather than block the sandbox.
func (s *LogStore) Subscribe() (<-chan LogEvent, func()) {
	ch := make(chan LogEvent, s.depth)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publish must be called with mu held.
func (s *LogStore) publish(ev LogEvent) {
	dropped := 0
	for sub := range s.subs {
		select {
		case sub <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		s.log.Debug("log store subscribers lagging", zap.Int("dropped", dropped))
	}
}
