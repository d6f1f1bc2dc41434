package service

import "sync"

type refMutex struct {
	sync.Mutex
	refs int
}

// pairLocker serialises work per model id. Locking two ids always happens
// in sorted order; entries are dropped once nobody holds or waits on them.
type pairLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newPairLocker() *pairLocker {
	return &pairLocker{locks: make(map[string]*refMutex)}
}

func (p *pairLocker) acquire(id string) *refMutex {
	p.mu.Lock()
	m, ok := p.locks[id]
	if !ok {
		m = &refMutex{}
		p.locks[id] = m
	}
	m.refs++
	p.mu.Unlock()

	m.Lock()
	return m
}

func (p *pairLocker) release(id string, m *refMutex) {
	m.Unlock()

	p.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(p.locks, id)
	}
	p.mu.Unlock()
}

// Lock holds both ids and returns the matching unlock
func (p *pairLocker) Lock(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	ma := p.acquire(a)
	if a == b {
		return func() { p.release(a, ma) }
	}
	mb := p.acquire(b)
	return func() {
		p.release(b, mb)
		p.release(a, ma)
	}
}
