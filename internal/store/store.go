// Package store provides the thread-safe in-memory collections and the
// simulated clock that back the healthbridge device simulator.
package store

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Store is a thread-safe, insertion-ordered collection of T keyed by string ID.
type Store[T any] struct {
	mu      sync.RWMutex
	items   map[string]T
	order   []string
	prefix  string
	counter atomic.Uint64
}

// New creates a Store whose generated IDs use the given prefix (e.g. "launch").
func New[T any](prefix string) *Store[T] {
	return &Store[T]{
		items:  make(map[string]T),
		order:  make([]string, 0),
		prefix: prefix,
	}
}

// NextID returns the next sequential ID, e.g. "launch_000001".
func (s *Store[T]) NextID() string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s_%06d", s.prefix, n)
}

// Set stores item under id. Overwriting keeps the original position.
func (s *Store[T]) Set(id string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

// Get retrieves an item by ID.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Replace swaps all items for items in one step, keyed by id and listed in
// the given order. Readers see either the old or the new contents.
func (s *Store[T]) Replace(items []T, id func(T) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(items))
	s.order = make([]string, 0, len(items))
	for _, item := range items {
		k := id(item)
		if _, dup := s.items[k]; !dup {
			s.order = append(s.order, k)
		}
		s.items[k] = item
	}
	s.counter.Store(uint64(len(s.order)))
}

// Delete removes an item by ID. Returns true if the item existed.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all items in insertion order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]T, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.items[id])
	}
	return result
}

// Page is one slice of a cursor-paginated listing.
type Page[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	Cursor  string `json:"cursor,omitempty"`
	Total   int    `json:"total"`
}

// Paginate returns up to limit items following the cursor (the last ID seen).
// An empty cursor starts at the beginning; limit <= 0 returns everything.
func (s *Store[T]) Paginate(cursor string, limit int) Page[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if cursor != "" {
		for i, id := range s.order {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = len(s.order)
	}

	end := min(start+limit, len(s.order))
	data := make([]T, 0, max(end-start, 0))
	var last string
	for i := start; i < end; i++ {
		data = append(data, s.items[s.order[i]])
		last = s.order[i]
	}

	return Page[T]{
		Data:    data,
		HasMore: end < len(s.order),
		Cursor:  last,
		Total:   len(s.order),
	}
}

// Count returns the number of items in the store.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset clears all items and restarts the ID counter.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = make([]string, 0)
	s.counter.Store(0)
}

// Snapshot returns a copy of all items keyed by ID.
func (s *Store[T]) Snapshot() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]T, len(s.items))
	for k, v := range s.items {
		snapshot[k] = v
	}
	return snapshot
}

// LoadSnapshot replaces all items. IDs are sorted so listing order is stable.
func (s *Store[T]) LoadSnapshot(snapshot map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(snapshot))
	s.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		s.items[k] = v
		s.order = append(s.order, k)
	}
	sort.Strings(s.order)
	s.counter.Store(uint64(len(snapshot)))
}

// Clock is a simulated clock. It follows wall time shifted by an offset that
// admin callers can advance; tests may pin the base time with NewClockAt.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
	base   func() time.Time
}

// NewClock creates a simulated clock that follows wall time.
func NewClock() *Clock {
	return &Clock{base: time.Now}
}

// NewClockAt creates a clock frozen at t until advanced.
func NewClockAt(t time.Time) *Clock {
	return &Clock{base: func() time.Time { return t }}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base().Add(c.offset)
}

// Advance moves the simulated clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset sets the offset back to zero.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}

// Offset returns the current clock offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
