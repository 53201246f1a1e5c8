package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"kntu-schedule/pkg/storage"
)

func TestStorage_GetSet(t *testing.T) {
	s := New(Config{Name: "test"})
	defer s.Close()

	ctx := context.Background()

	// Test Get non-existent key
	_, ok, err := s.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Expected miss for non-existent key")
	}

	// Test Set and Get
	if err := s.Set(ctx, "key1", "value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := s.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != "value1" {
		t.Errorf("Expected 'value1', got %q (found=%v)", value, ok)
	}

	// Overwrite
	if err := s.Set(ctx, "key1", "value2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, _, _ = s.Get(ctx, "key1")
	if value != "value2" {
		t.Errorf("Expected 'value2', got %q", value)
	}
}

func TestStorage_Remove(t *testing.T) {
	s := New(Config{Name: "test"})
	ctx := context.Background()

	s.Set(ctx, "key1", "value1")

	if err := s.Remove(ctx, "key1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "key1"); ok {
		t.Error("Expected key to be gone after Remove")
	}

	// Removing again is a no-op
	if err := s.Remove(ctx, "key1"); err != nil {
		t.Errorf("Second Remove failed: %v", err)
	}

	if st := s.Stats(); st.Bytes != 0 || st.Keys != 0 {
		t.Errorf("Expected empty stats, got %+v", st)
	}
}

func TestStorage_KeysAndLen(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	for _, k := range []string{"kntu_b", "kntu_a", "other"} {
		s.Set(ctx, k, "v")
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := []string{"kntu_a", "kntu_b", "other"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, keys)
	}

	n, _ := s.Len(ctx)
	if n != 3 {
		t.Errorf("Expected Len 3, got %d", n)
	}
}

func TestStorage_Quota(t *testing.T) {
	s := New(Config{Name: "quota", MaxBytes: 10})
	ctx := context.Background()

	if err := s.Set(ctx, "k", "12345"); err != nil {
		t.Fatalf("Set within quota failed: %v", err)
	}

	err := s.Set(ctx, "k2", "123456789")
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}

	// Overwriting an existing key only counts the delta
	if err := s.Set(ctx, "k", "12345678"); err != nil {
		t.Errorf("Overwrite within quota failed: %v", err)
	}
}

func TestStorage_InvalidKey(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	if err := s.Set(ctx, "", "v"); err == nil {
		t.Error("Expected error for empty key")
	}
	if err := s.Set(ctx, "bad\x00key", "v"); err == nil {
		t.Error("Expected error for key with control character")
	}
}

func TestStorage_CancelledContext(t *testing.T) {
	s := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Set(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestStorage_Concurrent(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			s.Set(ctx, key, "value")
			s.Get(ctx, key)
			s.Keys(ctx)
		}(i)
	}
	wg.Wait()

	n, _ := s.Len(ctx)
	if n != 50 {
		t.Errorf("Expected 50 keys, got %d", n)
	}
}
