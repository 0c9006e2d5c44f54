// Package eventlog provides the timestamped, append-only event log published
// to the UI collaborator. The log keeps only the most recent entries; older
// ones are evicted on append.
package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained by a Log.
const DefaultCapacity = 100

// Category classifies an event log entry.
type Category string

const (
	Info    Category = "info"
	Success Category = "success"
	Warning Category = "warning"
	Error   Category = "error"
)

// Entry is one timestamped event.
type Entry struct {
	Time     time.Time `json:"time"`
	Category Category  `json:"category"`
	Message  string    `json:"message"`
}

// Log is a bounded append-only event log. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	cap     int

	// onAppend, when set, observes every appended entry. It is invoked
	// outside the lock.
	onAppend func(Entry)
}

// New creates a Log retaining up to capacity entries; capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{cap: capacity}
}

// OnAppend registers a single observer invoked for every appended entry.
// Must be called before the log is shared across goroutines.
func (l *Log) OnAppend(fn func(Entry)) { l.onAppend = fn }

// Append records an entry with the current time, evicting the oldest entry
// when the log is full, and returns it.
func (l *Log) Append(cat Category, msg string) Entry {
	e := Entry{Time: time.Now(), Category: cat, Message: msg}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	l.mu.Unlock()

	if l.onAppend != nil {
		l.onAppend(e)
	}
	return e
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
