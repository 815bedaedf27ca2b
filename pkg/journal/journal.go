// Package journal keeps a bounded, in-memory history of the writes
// find-and-modify runs applied to a device.
package journal

import (
	"fmt"
	"sync"
	"time"
)

// Write is one record update as sent to the device.
type Write struct {
	ID      string         `json:"id"`
	Changes map[string]any `json:"changes"`
}

// Entry describes the writes of one run. Failed is set when the run
// aborted after Writes had been applied.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Writes    []Write   `json:"writes"`
	Failed    bool      `json:"failed,omitempty"`
}

// Journal is a ring buffer of entries. It is safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []*Entry
	maxSize int
}

// New creates a journal holding at most maxSize entries.
func New(maxSize int) *Journal {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Journal{maxSize: maxSize}
}

// Push appends an entry, dropping the oldest one when full.
func (j *Journal) Push(e *Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	if len(j.entries) > j.maxSize {
		j.entries = j.entries[1:]
	}
}

// Get returns the nth most recent entry (0 = most recent).
func (j *Journal) Get(n int) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n < 0 || n >= len(j.entries) {
		return nil, fmt.Errorf("journal entry %d: no such entry (have %d entries)", n, len(j.entries))
	}
	return j.entries[len(j.entries)-1-n], nil
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// MaxSize returns the capacity.
func (j *Journal) MaxSize() int {
	return j.maxSize
}

// List returns all entries, most recent first.
func (j *Journal) List() []*Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	result := make([]*Entry, len(j.entries))
	for i, e := range j.entries {
		result[len(j.entries)-1-i] = e
	}
	return result
}
