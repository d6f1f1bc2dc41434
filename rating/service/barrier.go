package service

import "sync"

// Barrier orders live rating updates against all_time rebuilds. Any number
// of updates may hold it at once; a rebuild waits for them and holds it
// alone.
type Barrier struct {
	mu sync.RWMutex
}

func NewBarrier() *Barrier {
	return &Barrier{}
}

// Update holds the barrier for one live update
func (b *Barrier) Update() func() {
	b.mu.RLock()
	return b.mu.RUnlock
}

// Recompute holds the barrier exclusively
func (b *Barrier) Recompute() func() {
	b.mu.Lock()
	return b.mu.Unlock
}
