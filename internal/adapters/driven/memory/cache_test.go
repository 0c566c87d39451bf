package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "structure:abc", []byte("payload"), time.Minute)

	got, ok := c.Get(ctx, "structure:abc")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if string(got) != "payload" {
		t.Errorf("Get() = %q, want %q", got, "payload")
	}
}

func TestCache_Get_Expired(t *testing.T) {
	c := NewCache(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected miss after expiry")
	}
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c := NewCache(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("zero-TTL entry expired")
	}
}

func TestCache_Invalidate_ByPrefix(t *testing.T) {
	c := NewCache(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "extraction:doc1:a", []byte("1"), 0)
	c.Set(ctx, "extraction:doc1:b", []byte("2"), 0)
	c.Set(ctx, "extraction:doc2:a", []byte("3"), 0)

	if n := c.Invalidate(ctx, "extraction:doc1"); n != 2 {
		t.Errorf("Invalidate() = %d, want 2", n)
	}
	if _, ok := c.Get(ctx, "extraction:doc2:a"); !ok {
		t.Error("unrelated entry was removed")
	}
}

func TestCache_ValueIsolation(t *testing.T) {
	c := NewCache(0)
	defer c.Close()
	ctx := context.Background()

	original := []byte("payload")
	c.Set(ctx, "k", original, 0)
	original[0] = 'X'

	got, _ := c.Get(ctx, "k")
	if string(got) != "payload" {
		t.Errorf("stored value aliased caller slice: %q", got)
	}

	got[0] = 'Y'
	again, _ := c.Get(ctx, "k")
	if string(again) != "payload" {
		t.Errorf("returned value aliased stored slice: %q", again)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k:%d:%d", n, j)
				c.Set(ctx, key, []byte("v"), time.Millisecond)
				c.Get(ctx, key)
				c.Invalidate(ctx, fmt.Sprintf("k:%d", n))
			}
		}(i)
	}
	wg.Wait()
}
