// Package history keeps the bounded most-recently-used list of resolved
// places.
package history

import (
	"sync"

	"place-explorer/server/internal/model"
)

// MaxEntries is the hard cap on the list length.
const MaxEntries = 5

// Entry is a place plus its position in recency order, 0 being the most
// recent.
type Entry struct {
	Place    model.PlaceDetails `json:"place"`
	Position int                `json:"position"`
}

// Listener receives the list after each upsert.
type Listener func([]Entry)

// Cache is a deduplicated MRU list keyed by model.IdentityKey.
// UpsertFront is the only mutator. Reads are safe from any goroutine.
type Cache struct {
	mu        sync.RWMutex
	capacity  int
	places    []model.PlaceDetails
	listeners map[int]Listener
	nextID    int
}

// New returns an empty cache. Capacities outside 1..MaxEntries become
// MaxEntries.
func New(capacity int) *Cache {
	if capacity < 1 || capacity > MaxEntries {
		capacity = MaxEntries
	}
	return &Cache{
		capacity:  capacity,
		places:    make([]model.PlaceDetails, 0, capacity),
		listeners: make(map[int]Listener),
	}
}

// Capacity returns the maximum length.
func (c *Cache) Capacity() int {
	return c.capacity
}

// UpsertFront moves details to the front, removing any entry with the same
// identity key and dropping overflow from the tail.
func (c *Cache) UpsertFront(details model.PlaceDetails) {
	key := details.Key()

	c.mu.Lock()
	next := make([]model.PlaceDetails, 0, c.capacity)
	next = append(next, details.Clone())
	for _, p := range c.places {
		if p.Key() == key {
			continue
		}
		if len(next) == c.capacity {
			break
		}
		next = append(next, p)
	}
	c.places = next
	entries := c.entriesLocked()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(cloneEntries(entries))
	}
}

// Entries returns a copy of the list, most recent first.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entriesLocked()
}

// Find returns the entry with the given identity key.
func (c *Cache) Find(key model.IdentityKey) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, p := range c.places {
		if p.Key() == key {
			return Entry{Place: p.Clone(), Position: i}, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.places)
}

// Overflow is the "+N more" count for a list showing visible rows.
func (c *Cache) Overflow(visible int) int {
	if visible < 0 {
		visible = 0
	}
	n := c.Len() - visible
	if n < 0 {
		return 0
	}
	return n
}

// Subscribe registers l and returns a function that removes it.
func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) entriesLocked() []Entry {
	out := make([]Entry, len(c.places))
	for i, p := range c.places {
		out[i] = Entry{Place: p.Clone(), Position: i}
	}
	return out
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = Entry{Place: e.Place.Clone(), Position: e.Position}
	}
	return out
}
