package proxy

import (
	"sync"
	"time"
)

type Action string

const (
	ActionAllow  Action = "allow"
	ActionBlock  Action = "block"
	ActionBypass Action = "bypass"
)

type Source string

const (
	SourceTCP  Source = "tcp"
	SourceHTTP Source = "http"
	SourceDNS  Source = "dns"
)

type LogEntry struct {
	ID     uint64    `json:"id"`
	Time   time.Time `json:"time"`
	Addr   string    `json:"addr"`
	Action Action    `json:"action"`
	Source Source    `json:"source"`
	Conn   string    `json:"conn,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

type AddrStats struct {
	Allowed int `json:"allowed"`
	Blocked int `json:"blocked"`
}

// LogBuffer is a fixed-size ring of gate decisions with per-address counters.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	cap     int
	pos     int
	full    bool
	nextID  uint64
	stats   map[string]*AddrStats
}

func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, capacity),
		cap:     capacity,
		stats:   make(map[string]*AddrStats),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	entry.ID = b.nextID
	b.entries[b.pos] = entry
	b.pos = (b.pos + 1) % b.cap
	if b.pos == 0 && !b.full {
		b.full = true
	}

	s, ok := b.stats[entry.Addr]
	if !ok {
		s = &AddrStats{}
		b.stats[entry.Addr] = s
	}
	switch entry.Action {
	case ActionAllow, ActionBypass:
		s.Allowed++
	case ActionBlock:
		s.Blocked++
	}
}

// Entries returns all buffered entries, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entriesLocked()
}

func (b *LogBuffer) entriesLocked() []LogEntry {
	if !b.full {
		result := make([]LogEntry, b.pos)
		copy(result, b.entries[:b.pos])
		return result
	}

	result := make([]LogEntry, b.cap)
	copy(result, b.entries[b.pos:])
	copy(result[b.cap-b.pos:], b.entries[:b.pos])
	return result
}

// EntriesAfter returns entries with an ID greater than afterID.
func (b *LogBuffer) EntriesAfter(afterID uint64) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.entriesLocked()
	for i, e := range all {
		if e.ID > afterID {
			return all[i:]
		}
	}
	return []LogEntry{}
}

func (b *LogBuffer) Stats() map[string]AddrStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make(map[string]AddrStats, len(b.stats))
	for k, v := range b.stats {
		result[k] = *v
	}
	return result
}
