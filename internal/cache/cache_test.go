package cache

import (
	"strings"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(1024)
	c.Set("a", "hello", 0)
	value, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if value.(string) != "hello" {
		t.Fatalf("unexpected value %v", value)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected counters %+v", stats)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	// each 100-char string estimates to 200 bytes plus nothing else
	payload := strings.Repeat("x", 100)
	c := New(500)
	c.Set("a", payload, 0)
	c.Set("b", payload, 0)

	// touch "a" so "b" becomes the eviction candidate
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}
	c.Set("c", payload, 0) // 600 estimated bytes total, forces one eviction

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected recently used a to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected c present")
	}
	if stats := c.GetStats(); stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestCacheRejectsOversizedValue(t *testing.T) {
	c := New(100)
	c.Set("big", strings.Repeat("x", 200), 0)
	if c.Has("big") {
		t.Fatal("oversized value must not be stored")
	}
	if stats := c.GetStats(); stats.Entries != 0 {
		t.Fatalf("expected empty cache, got %+v", stats)
	}
}

func TestCacheTTLExpiryCountsAsMiss(t *testing.T) {
	c := New(1024)
	c.Set("a", "v", 10*time.Millisecond)
	if !c.Has("a") {
		t.Fatal("expected entry before expiry")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	stats := c.GetStats()
	if stats.Misses != 1 {
		t.Fatalf("expected expiry counted as miss, got %+v", stats)
	}
	if stats.Entries != 0 {
		t.Fatal("expected lazy deletion of expired entry")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New(1024)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Delete("a")
	if c.Has("a") {
		t.Fatal("expected a deleted")
	}
	c.Clear()
	if stats := c.GetStats(); stats.Entries != 0 || stats.SizeBytes != 0 {
		t.Fatalf("expected empty cache after clear, got %+v", stats)
	}
}

func TestCacheSetReplacesExistingKey(t *testing.T) {
	c := New(1024)
	c.Set("a", strings.Repeat("x", 10), 0)
	before := c.GetStats().SizeBytes
	c.Set("a", strings.Repeat("x", 20), 0)
	after := c.GetStats().SizeBytes
	if c.GetStats().Entries != 1 {
		t.Fatal("expected single entry after replace")
	}
	if after <= before {
		t.Fatalf("expected accounting to track replacement, %d -> %d", before, after)
	}
}

func TestEstimateSize(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  int64
	}{
		{"string", "abcd", 8},
		{"bool", true, 4},
		{"number", 3.5, 8},
		{"array", []any{"ab", 1.0}, containerOverhead + 4 + 8},
		{"object", map[string]any{"k": true}, containerOverhead + 2 + 4},
	}
	for _, tc := range cases {
		if got := estimateSize(tc.value); got != tc.want {
			t.Errorf("%s: estimateSize = %d, want %d", tc.name, got, tc.want)
		}
	}

	// structs fall back to serialized length
	type payload struct {
		Name string `json:"name"`
	}
	if got := estimateSize(payload{Name: "x"}); got != int64(2*len(`{"name":"x"}`)) {
		t.Errorf("struct fallback estimate = %d", got)
	}
}
