package forms

import (
	"context"
	"sync"
	"time"
)

type registryEntry[F any] struct {
	form     F
	lastSeen time.Time
}

// Registry keeps live form instances per key and forgets idle ones.
type Registry[F any] struct {
	mu      sync.Mutex
	items   map[string]*registryEntry[F]
	idleTTL time.Duration
	now     func() time.Time
}

func NewRegistry[F any](idleTTL time.Duration) *Registry[F] {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Registry[F]{
		items:   make(map[string]*registryEntry[F]),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (r *Registry[F]) Get(key string) (F, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.items[key]
	if !ok {
		var zero F
		return zero, false
	}
	entry.lastSeen = r.now()
	return entry.form, true
}

// GetOrCreate returns the form stored under key, creating it if absent.
func (r *Registry[F]) GetOrCreate(key string, create func() F) F {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.items[key]; ok {
		entry.lastSeen = r.now()
		return entry.form
	}
	form := create()
	r.items[key] = &registryEntry[F]{form: form, lastSeen: r.now()}
	return form
}

// Put replaces the form stored under key.
func (r *Registry[F]) Put(key string, form F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = &registryEntry[F]{form: form, lastSeen: r.now()}
}

func (r *Registry[F]) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *Registry[F]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Prune drops entries idle for longer than the TTL and returns how many.
func (r *Registry[F]) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for key, entry := range r.items {
		if entry.lastSeen.Before(cutoff) {
			delete(r.items, key)
			removed++
		}
	}
	return removed
}

// Run prunes every interval until ctx is done.
func (r *Registry[F]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Prune()
		}
	}
}
