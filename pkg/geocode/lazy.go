package geocode

import "sync"

// Lazy builds a Resolver on first use. The first Get runs init; every later
// or concurrent Get observes that same pending or completed result, error
// included.
type Lazy struct {
	get func() (Resolver, error)
}

// NewLazy wraps init in a memoized initializer.
func NewLazy(init func() (Resolver, error)) *Lazy {
	return &Lazy{get: sync.OnceValues(init)}
}

// Get returns the memoized Resolver.
func (l *Lazy) Get() (Resolver, error) {
	return l.get()
}
