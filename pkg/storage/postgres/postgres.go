package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Storage is a persistent storage tier kept in a single PostgreSQL table.
type Storage struct {
	db     *sql.DB
	config Config
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	Name string
	// DSN, when set, is used verbatim and the discrete fields are ignored.
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Table holds the key/value rows.
	Table string
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Name:     "postgres",
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "schedule",
		SSLMode:  "disable",
		Table:    "kv_store",
	}
}

func (c Config) connString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// New opens a connection pool, pings the server and creates the table.
func New(cfg Config) (*Storage, error) {
	if cfg.Name == "" {
		cfg.Name = "postgres"
	}
	if cfg.Table == "" {
		cfg.Table = "kv_store"
	}

	db, err := sql.Open("postgres", cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Storage{db: db, config: cfg}
	if err := s.initTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init table: %w", err)
	}

	return s, nil
}

func (s *Storage) initTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	)`, s.config.Table))
	return err
}

// Get returns the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.config.Table), key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres get: %w", err)
	}

	return value, true, nil
}

// Set upserts value under key.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.config.Table), key, value)
	if err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

// Remove deletes key.
func (s *Storage) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.config.Table), key)
	if err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

// Keys enumerates every key in the table.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, s.config.Table))
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("postgres keys: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Len counts the rows.
func (s *Storage) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s`, s.config.Table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres len: %w", err)
	}
	return n, nil
}

// Name returns the storage name.
func (s *Storage) Name() string {
	return s.config.Name
}

// Close closes the connection pool.
func (s *Storage) Close() error {
	return s.db.Close()
}
