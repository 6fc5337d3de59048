package logger

import (
	"sync"
	"time"
)

// Levels of buffered entries. SUCCESS is an operator-facing level the
// debug UI distinguishes from plain INFO.
const (
	LevelError   = "ERROR"
	LevelWarning = "WARNING"
	LevelSuccess = "SUCCESS"
	LevelInfo    = "INFO"
)

// Categories group entries by subsystem.
const (
	CategoryServer   = "SERVER"
	CategoryBot      = "BOT"
	CategoryAPI      = "API"
	CategoryAuth     = "AUTH"
	CategoryDatabase = "DATABASE"
	CategoryTelegram = "TELEGRAM"
	CategorySettings = "SETTINGS"
	CategorySupport  = "SUPPORT"
)

// Entry is one buffered log event, shaped for the debug API.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// Buffer keeps the newest entries for the debug UI. Capacity is fixed;
// appending beyond it evicts the oldest entry. Reads return snapshots
// in newest-first order.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry // ring storage
	head    int     // index of the newest entry
	size    int
	cap     int
}

// DefaultCapacity matches the debug UI contract.
const DefaultCapacity = 1000

// NewBuffer creates a buffer holding at most capacity entries.
// Non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries: make([]Entry, capacity),
		head:    -1,
		cap:     capacity,
	}
}

// Append records one entry, evicting the oldest when full, and returns
// the entry as stored (with its timestamp assigned).
func (b *Buffer) Append(level, category, message, details string) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.head = (b.head + 1) % b.cap
	b.entries[b.head] = Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Category:  category,
		Message:   message,
		Details:   details,
	}
	if b.size < b.cap {
		b.size++
	}
	return b.entries[b.head]
}

// Read returns up to limit entries matching the optional level and
// category filters, newest first, plus the total match count before the
// limit was applied. A non-positive limit returns all matches.
func (b *Buffer) Read(limit int, level, category string) ([]Entry, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := make([]Entry, 0, b.size)
	for i := 0; i < b.size; i++ {
		e := b.entries[(b.head-i+b.cap)%b.cap]
		if level != "" && e.Level != level {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total
}

// Len reports the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Clear drops every buffered entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = -1
	b.size = 0
}
