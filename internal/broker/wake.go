package broker

import (
	"sync"
	"sync/atomic"
)

// Wake broadcasts "a command became available" to every current waiter.
//
// Each Register call receives the channel of the current generation. Broadcast
// closes that channel and starts a new generation, so every waiter observes a
// given broadcast exactly once and nothing is buffered for later waiters.
type Wake struct {
	mu      sync.Mutex
	ch      chan struct{}
	waiters atomic.Int64
}

func NewWake() *Wake {
	return &Wake{ch: make(chan struct{})}
}

// Register returns a channel closed by the next Broadcast and a release func
// that must be called once the caller stops waiting. Release is idempotent.
func (w *Wake) Register() (<-chan struct{}, func()) {
	w.mu.Lock()
	ch := w.ch
	w.mu.Unlock()

	w.waiters.Add(1)
	var once sync.Once
	return ch, func() {
		once.Do(func() { w.waiters.Add(-1) })
	}
}

// Broadcast wakes every registered waiter.
func (w *Wake) Broadcast() {
	w.mu.Lock()
	close(w.ch)
	w.ch = make(chan struct{})
	w.mu.Unlock()
}

// Waiters returns the number of unreleased registrations.
func (w *Wake) Waiters() int {
	return int(w.waiters.Load())
}
