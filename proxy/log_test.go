package proxy

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer(t *testing.T) {
	t.Run("stores entries up to capacity", func(t *testing.T) {
		buf := NewLogBuffer(3)
		buf.Add(LogEntry{Time: time.Now(), Addr: "1.1.1.1", Action: ActionAllow, Source: SourceTCP})
		buf.Add(LogEntry{Time: time.Now(), Addr: "2.2.2.2", Action: ActionBlock, Source: SourceHTTP})
		buf.Add(LogEntry{Time: time.Now(), Addr: "3.3.3.3", Action: ActionAllow, Source: SourceDNS})

		entries := buf.Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, "1.1.1.1", entries[0].Addr)
	})

	t.Run("overwrites oldest when full", func(t *testing.T) {
		buf := NewLogBuffer(2)
		buf.Add(LogEntry{Addr: "1.1.1.1"})
		buf.Add(LogEntry{Addr: "2.2.2.2"})
		buf.Add(LogEntry{Addr: "3.3.3.3"})

		entries := buf.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, "2.2.2.2", entries[0].Addr)
		assert.Equal(t, "3.3.3.3", entries[1].Addr)
	})

	t.Run("assigns sequential IDs", func(t *testing.T) {
		buf := NewLogBuffer(10)
		buf.Add(LogEntry{Addr: "1.1.1.1"})
		buf.Add(LogEntry{Addr: "2.2.2.2"})
		buf.Add(LogEntry{Addr: "3.3.3.3"})

		entries := buf.Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, uint64(1), entries[0].ID)
		assert.Equal(t, uint64(2), entries[1].ID)
		assert.Equal(t, uint64(3), entries[2].ID)
	})

	t.Run("stats counts per address", func(t *testing.T) {
		buf := NewLogBuffer(100)
		buf.Add(LogEntry{Addr: "1.1.1.1", Action: ActionAllow})
		buf.Add(LogEntry{Addr: "1.1.1.1", Action: ActionBypass})
		buf.Add(LogEntry{Addr: "1.1.1.1", Action: ActionBlock})
		buf.Add(LogEntry{Addr: "2.2.2.2", Action: ActionBlock})

		stats := buf.Stats()
		assert.Equal(t, AddrStats{Allowed: 2, Blocked: 1}, stats["1.1.1.1"])
		assert.Equal(t, AddrStats{Blocked: 1}, stats["2.2.2.2"])
	})
}

func TestEntriesAfter(t *testing.T) {
	t.Run("zero afterID returns everything", func(t *testing.T) {
		buf := NewLogBuffer(100)
		for range 5 {
			buf.Add(LogEntry{Addr: "1.1.1.1"})
		}

		entries := buf.EntriesAfter(0)
		require.Len(t, entries, 5)
		assert.Equal(t, uint64(1), entries[0].ID)
	})

	t.Run("returns entries after given ID", func(t *testing.T) {
		buf := NewLogBuffer(100)
		for range 10 {
			buf.Add(LogEntry{Addr: "1.1.1.1"})
		}

		entries := buf.EntriesAfter(7)
		require.Len(t, entries, 3)
		assert.Equal(t, uint64(8), entries[0].ID)
		assert.Equal(t, uint64(10), entries[2].ID)
	})

	t.Run("returns empty slice when no new entries", func(t *testing.T) {
		buf := NewLogBuffer(100)
		for range 5 {
			buf.Add(LogEntry{Addr: "1.1.1.1"})
		}

		entries := buf.EntriesAfter(5)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("works after buffer wraps", func(t *testing.T) {
		buf := NewLogBuffer(3)
		// Entries 1 and 2 are overwritten.
		for i := range 5 {
			buf.Add(LogEntry{Addr: fmt.Sprintf("10.0.0.%d", i+1)})
		}

		entries := buf.EntriesAfter(2)
		require.Len(t, entries, 3)
		assert.Equal(t, uint64(3), entries[0].ID)
		assert.Equal(t, "10.0.0.3", entries[0].Addr)
		assert.Equal(t, uint64(5), entries[2].ID)

		entries = buf.EntriesAfter(4)
		require.Len(t, entries, 1)
		assert.Equal(t, "10.0.0.5", entries[0].Addr)
	})
}
