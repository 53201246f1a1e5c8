package redis

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"
)

func setupTestRedis(t *testing.T) *Storage {
	config := DefaultConfig()
	config.Name = "TestRedis"
	config.KeyPrefix = "test:storage:"
	config.DialTimeout = 2 * time.Second
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}

	s, err := New(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	ctx := context.Background()
	keys, _ := s.Keys(ctx)
	for _, k := range keys {
		s.Remove(ctx, k)
	}

	return s
}

func TestNew_NoAddress(t *testing.T) {
	_, err := New(Config{Name: "empty"})
	if err == nil {
		t.Fatal("Expected error without addresses")
	}
}

func TestStorage_SetGetRemove(t *testing.T) {
	s := setupTestRedis(t)
	defer s.Close()

	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "kntu_groups_x", `{"data":1}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := s.Get(ctx, "kntu_groups_x")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if value != `{"data":1}` {
		t.Errorf("Unexpected value %q", value)
	}

	if err := s.Remove(ctx, "kntu_groups_x"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "kntu_groups_x"); ok {
		t.Error("Expected key to be removed")
	}
}

func TestStorage_Keys(t *testing.T) {
	s := setupTestRedis(t)
	defer s.Close()

	ctx := context.Background()
	s.Set(ctx, "kntu_a", "1")
	s.Set(ctx, "kntu_b", "2")

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "kntu_a" || keys[1] != "kntu_b" {
		t.Errorf("Unexpected keys %v", keys)
	}

	n, err := s.Len(ctx)
	if err != nil || n != 2 {
		t.Errorf("Expected Len 2, got %d (%v)", n, err)
	}
}
