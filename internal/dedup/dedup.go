// Package dedup tracks which event ids the feed has already reported.
//
// The push stream and the refresh poller both mark ids here, so an event
// seen on one path is not reported again by the other. The set is bounded;
// once full, the oldest id is forgotten first.
package dedup

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds a Set created with a non-positive capacity.
const DefaultCapacity = 10000

// Set is a bounded, FIFO-evicting set of event ids. Safe for concurrent use.
//
// Lookups go through Contains and ContainsOrAdd, which leave recency alone,
// so the LRU order is insertion order.
type Set struct {
	ids      *lru.Cache[int64, struct{}]
	capacity int
}

// New creates a Set holding at most capacity ids.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only fails for a non-positive size.
	ids, err := lru.New[int64, struct{}](capacity)
	if err != nil {
		panic(err)
	}
	return &Set{ids: ids, capacity: capacity}
}

// MarkSeen records id and reports whether it was new.
func (s *Set) MarkSeen(id int64) bool {
	found, _ := s.ids.ContainsOrAdd(id, struct{}{})
	return !found
}

// Seen reports whether id is currently tracked.
func (s *Set) Seen(id int64) bool {
	return s.ids.Contains(id)
}

// Len returns the number of tracked ids.
func (s *Set) Len() int {
	return s.ids.Len()
}

// Cap returns the maximum number of tracked ids.
func (s *Set) Cap() int {
	return s.capacity
}
