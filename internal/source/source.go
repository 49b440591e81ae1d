// Package source provides the in-memory reading collection that producers
// push into and the transfer buffer consumes from.
package source

import (
	"sync"

	"github.com/user/meter-logger/internal/domain"
)

// MemorySource is a mutex-guarded, ordered collection of readings
// implementing domain.ReadingSource. Producers push readings at any time;
// a transfer pass locks the source, scans it and marks consumed readings
// deleted without removing them. Compact reclaims the consumed prefix.
type MemorySource struct {
	mu       sync.Mutex
	readings []*domain.Reading
}

// New creates an empty source collection.
func New() *MemorySource {
	return &MemorySource{}
}

// Lock acquires exclusive access to the collection.
func (s *MemorySource) Lock() { s.mu.Lock() }

// Unlock releases exclusive access to the collection.
func (s *MemorySource) Unlock() { s.mu.Unlock() }

// Push appends a reading to the collection. It takes the lock itself and
// may be called concurrently with a transfer pass.
func (s *MemorySource) Push(reading domain.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := reading
	s.readings = append(s.readings, &r)
}

// Readings returns the contained readings in arrival order. The returned
// slice is only valid while the caller holds the lock.
func (s *MemorySource) Readings() []*domain.Reading {
	return s.readings
}

// Undelete clears the consumed mark on every reading. Callers must hold the
// lock.
func (s *MemorySource) Undelete() {
	for _, r := range s.readings {
		r.ClearDeleted()
	}
}

// Len returns the number of contained readings, consumed or not.
func (s *MemorySource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

// Pending returns the number of readings not yet consumed by a transfer
// pass.
func (s *MemorySource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.readings {
		if !r.Deleted() {
			n++
		}
	}
	return n
}

// Compact drops the leading run of consumed readings so the collection does
// not grow without bound. Readings after the first unconsumed one are kept
// regardless of their mark, preserving arrival order. Returns the number of
// readings dropped.
func (s *MemorySource) Compact() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := 0
	for i < len(s.readings) && s.readings[i].Deleted() {
		i++
	}
	if i == 0 {
		return 0
	}
	s.readings = s.readings[:copy(s.readings, s.readings[i:])]
	return i
}
