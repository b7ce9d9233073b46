package locks

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultStripes is the stripe count used when a non-positive count is requested
const DefaultStripes = 1024

// Striped is a fixed set of mutexes selected by hashing a key. Two keys that
// land on the same stripe serialize; a key never moves between stripes, so
// holding its stripe gives exclusive access to everything stored under it.
//
// Striped is process-local. It provides no coordination between processes.
type Striped struct {
	stripes []paddedMutex
	mask    uint64
}

// paddedMutex keeps neighbouring stripes on separate cache lines
type paddedMutex struct {
	sync.Mutex
	_ [56]byte
}

// NewStriped creates a lock set with at least n stripes, rounded up to a power of two
func NewStriped(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Striped{
		stripes: make([]paddedMutex, size),
		mask:    uint64(size - 1),
	}
}

func (s *Striped) stripe(key string) *paddedMutex {
	return &s.stripes[s.index(key)]
}

// Lock acquires the stripe guarding key and returns the matching unlock function
func (s *Striped) Lock(key string) func() {
	m := s.stripe(key)
	m.Lock()
	return m.Unlock
}

// With runs fn while holding the stripe guarding key
func (s *Striped) With(key string, fn func()) {
	unlock := s.Lock(key)
	defer unlock()
	fn()
}

// index reports which stripe guards key
func (s *Striped) index(key string) int {
	return int(xxhash.Sum64String(key) & s.mask)
}

// Len returns the number of stripes
func (s *Striped) Len() int {
	return len(s.stripes)
}
