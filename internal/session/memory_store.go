package session

import (
	"context"
	"sync"
	"time"
)

type memoryQueue struct {
	flashes []Flash
	expires time.Time
}

// MemoryStore is the in-process Store used when no Redis URL is configured.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	ttl    time.Duration
	now    func() time.Time
	swept  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string]*memoryQueue),
		ttl:    DefaultFlashTTL,
		now:    time.Now,
	}
}

func (s *MemoryStore) Push(_ context.Context, key string, flash Flash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if flash.CreatedAt.IsZero() {
		flash.CreatedAt = now.UTC()
	}
	s.sweepLocked(now)
	q, ok := s.queues[key]
	if !ok || now.After(q.expires) {
		q = &memoryQueue{}
		s.queues[key] = q
	}
	q.flashes = append(q.flashes, flash)
	q.expires = now.Add(s.ttl)
	return nil
}

// sweepLocked drops expired queues, at most once per ttl.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.swept) < s.ttl {
		return
	}
	s.swept = now
	for key, q := range s.queues {
		if now.After(q.expires) {
			delete(s.queues, key)
		}
	}
}

func (s *MemoryStore) Drain(_ context.Context, key string) ([]Flash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[key]
	delete(s.queues, key)
	if !ok || s.now().After(q.expires) {
		return []Flash{}, nil
	}
	return q.flashes, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
