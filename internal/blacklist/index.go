// Package blacklist holds the in-memory index of known scammer IDs and the
// refresher that rebuilds it from the public sources.
package blacklist

import "sync"

// Entry describes why an ID is in the index.
type Entry struct {
	Source string
}

// Index is the in-memory set of blacklisted user IDs. Lookups take a read
// lock; Refresh replaces the whole map under a write lock, so readers never
// observe a partially loaded set.
type Index struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[int64]Entry)}
}

// Contains checks whether the user ID is in the index.
func (i *Index) Contains(userID int64) bool {
	_, ok := i.Lookup(userID)
	return ok
}

// Lookup returns the entry for a user ID, if present.
func (i *Index) Lookup(userID int64) (Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	entry, ok := i.entries[userID]
	return entry, ok
}

// Size returns the number of IDs in the index.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// ReplaceAll swaps the whole set in one step.
func (i *Index) ReplaceAll(entries map[int64]Entry) {
	i.mu.Lock()
	i.entries = entries
	i.mu.Unlock()
}
