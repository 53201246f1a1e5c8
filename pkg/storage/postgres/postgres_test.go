package postgres

import (
	"context"
	"os"
	"testing"
)

func setupTestPostgres(t *testing.T) *Storage {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	cfg := DefaultConfig()
	cfg.DSN = dsn
	cfg.Table = "kv_store_test"

	s, err := New(cfg)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}

	ctx := context.Background()
	keys, _ := s.Keys(ctx)
	for _, k := range keys {
		s.Remove(ctx, k)
	}

	return s
}

func TestConfig_ConnString(t *testing.T) {
	cfg := DefaultConfig()
	want := "host=localhost port=5432 user=postgres password=postgres dbname=schedule sslmode=disable"
	if got := cfg.connString(); got != want {
		t.Errorf("connString() = %q, want %q", got, want)
	}

	cfg.DSN = "postgres://u:p@db/x"
	if got := cfg.connString(); got != cfg.DSN {
		t.Errorf("DSN should win, got %q", got)
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	s := setupTestPostgres(t)
	defer s.Close()

	ctx := context.Background()

	if err := s.Set(ctx, "kntu_faculties_x", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "kntu_faculties_x", "v2"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	value, ok, err := s.Get(ctx, "kntu_faculties_x")
	if err != nil || !ok || value != "v2" {
		t.Fatalf("Get = %q, %v, %v", value, ok, err)
	}

	n, _ := s.Len(ctx)
	if n != 1 {
		t.Errorf("Expected 1 row, got %d", n)
	}

	s.Remove(ctx, "kntu_faculties_x")
	if _, ok, _ := s.Get(ctx, "kntu_faculties_x"); ok {
		t.Error("Expected key to be removed")
	}
}
