package tiered

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memCache is a plain map-backed cache for exercising tier interactions.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	gets    int
	sets    int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func TestTieredCache_L2HitBackfillsL1(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.data["k"] = []byte("remote")
	c := New(l1, l2, time.Minute)
	ctx := context.Background()

	val, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(val, []byte("remote")) {
		t.Errorf("val = %q", val)
	}
	if !bytes.Equal(l1.data["k"], []byte("remote")) {
		t.Error("L1 not backfilled")
	}

	// Second read is served locally.
	if _, _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if l2.gets != 1 {
		t.Errorf("l2 gets = %d, want 1", l2.gets)
	}
}

func TestTieredCache_L2ReadErrorIsMiss(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.getErr = errors.New("nats down")
	c := New(l1, l2, time.Minute)

	_, ok, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("ok = true, want miss")
	}
}

func TestTieredCache_SetToleratesL2Failure(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.setErr = errors.New("nats down")
	c := New(l1, l2, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Error("L1 should still hold the value")
	}
}

func TestTieredCache_DeleteHitsBothTiers(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := New(l1, l2, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if l1.deletes != 1 || l2.deletes != 1 {
		t.Errorf("deletes l1=%d l2=%d, want 1/1", l1.deletes, l2.deletes)
	}
}
