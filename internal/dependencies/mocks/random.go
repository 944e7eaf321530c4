package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/pongladder/internal/dependencies/random"
)

// MockRandom returns queued strings, then falls back to
// predictable "token-N" values once the queue is drained.
type MockRandom struct {
	mu      sync.Mutex
	queued  []string
	next    int
	counter int
}

var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// String returns the next queued result, ignoring length and alphabet
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next < len(r.queued) {
		result := r.queued[r.next]
		r.next++
		return result
	}
	r.counter++
	return fmt.Sprintf("token-%d", r.counter)
}

// QueueString adds values to the result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, values...)
}

// Reset clears the queue and the fallback counter
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = nil
	r.next = 0
	r.counter = 0
}
