package chatsync

import "sync"

// FetchGuard suppresses stale asynchronous results. Every fetch of a given
// class begins by taking a token; when the response arrives, the result is
// applied only if the token is still the latest issued for that class and
// the guard has not been invalidated by a screen unmount.
//
// Of N concurrent fetches of the same class, only the most recently
// initiated one's result is ever applied, regardless of resolution order.
// A discarded stale response is not retried and not surfaced as an error.
type FetchGuard struct {
	mu     sync.Mutex
	latest map[string]uint64
	dead   bool
}

// NewFetchGuard creates a live guard.
func NewFetchGuard() *FetchGuard {
	return &FetchGuard{latest: make(map[string]uint64)}
}

// Begin marks the start of a fetch and returns its token. Each class has
// an independent monotonic counter.
func (g *FetchGuard) Begin(class string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest[class]++
	return g.latest[class]
}

// IsCurrent reports whether a resolving fetch still owns its class. It is
// false for superseded tokens and for all tokens once the guard has been
// invalidated. Loading flags must only be cleared by the response for
// which IsCurrent is true.
func (g *FetchGuard) IsCurrent(class string, token uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.dead && g.latest[class] == token
}

// Invalidate marks the owning screen as unmounted. In-flight fetches may
// still resolve but can no longer mutate shared state.
func (g *FetchGuard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dead = true
}

// Alive reports whether the guard has not been invalidated.
func (g *FetchGuard) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.dead
}
