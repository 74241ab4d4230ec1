package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreInvalidURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestPushAndDrain(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Push(ctx, "user-1", Flash{Kind: "success", Message: "Torrent uploaded successfully"}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if err := store.Push(ctx, "user-1", Flash{Kind: "error", Message: "Could not upload file: forbidden"}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	flashes, err := store.Drain(ctx, "user-1")
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(flashes) != 2 {
		t.Fatalf("expected 2 flashes, got %d", len(flashes))
	}
	if flashes[0].Message != "Torrent uploaded successfully" || flashes[1].Kind != "error" {
		t.Errorf("unexpected order: %+v", flashes)
	}
	if flashes[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	again, err := store.Drain(ctx, "user-1")
	if err != nil {
		t.Fatalf("second Drain failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected drained queue to be empty, got %d", len(again))
	}
}

func TestDrainIsolatesKeys(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	_ = store.Push(ctx, "user-1", Flash{Kind: "success", Message: "one"})

	flashes, err := store.Drain(ctx, "user-2")
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(flashes) != 0 {
		t.Errorf("expected no flashes for other key, got %d", len(flashes))
	}
}

func TestFlashExpiration(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Push(ctx, "user-1", Flash{Kind: "success", Message: "gone soon"}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	s.FastForward(DefaultFlashTTL + time.Second)

	flashes, err := store.Drain(ctx, "user-1")
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(flashes) != 0 {
		t.Errorf("expected expired flashes to be gone, got %d", len(flashes))
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	_ = store.Push(ctx, "user-1", Flash{Kind: "success", Message: "first"})
	_ = store.Push(ctx, "user-1", Flash{Kind: "error", Message: "second"})

	flashes, _ := store.Drain(ctx, "user-1")
	if len(flashes) != 2 || flashes[0].Message != "first" {
		t.Fatalf("unexpected flashes: %+v", flashes)
	}
	if flashes, _ := store.Drain(ctx, "user-1"); len(flashes) != 0 {
		t.Errorf("expected empty after drain, got %d", len(flashes))
	}

	_ = store.Push(ctx, "user-1", Flash{Kind: "success", Message: "stale"})
	now = now.Add(DefaultFlashTTL + time.Second)
	if flashes, _ := store.Drain(ctx, "user-1"); len(flashes) != 0 {
		t.Errorf("expected expired flashes to be dropped, got %d", len(flashes))
	}
}

func TestMemoryStorePrunesUndrainedQueues(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	_ = store.Push(ctx, "user-1", Flash{Kind: "success", Message: "never drained"})
	_ = store.Push(ctx, "user-2", Flash{Kind: "success", Message: "recent"})

	now = now.Add(DefaultFlashTTL + time.Second)
	_ = store.Push(ctx, "user-3", Flash{Kind: "success", Message: "fresh"})

	store.mu.Lock()
	_, stale := store.queues["user-1"]
	count := len(store.queues)
	store.mu.Unlock()
	if stale || count != 1 {
		t.Errorf("expected only the fresh queue to remain, stale=%v count=%d", stale, count)
	}
}
