package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

// Storage is a persistent storage tier backed by Redis.
type Storage struct {
	client rueidis.Client
	config Config
}

// Config configures the Redis storage tier.
type Config struct {
	Name string
	// Addr is the Redis server address for single node/sentinel mode.
	// For cluster mode, use ClusterAddrs instead.
	Addr string
	// ClusterAddrs is a list of Redis cluster node addresses.
	// If set, cluster mode is enabled automatically.
	ClusterAddrs []string
	Username     string
	Password     string
	// DB is the Redis database number (0-15).
	// Note: In cluster mode, only DB 0 is supported.
	DB int
	// KeyPrefix namespaces every key so several deployments can share one
	// Redis. It is stripped again by Keys.
	KeyPrefix    string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// ScanCount is the COUNT hint used when enumerating keys.
	ScanCount int64
}

// DefaultConfig returns a single-node configuration on localhost.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "schedule:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		ScanCount:    100,
	}
}

// New connects to Redis and verifies the connection with PING.
func New(config Config) (*Storage, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	if len(config.ClusterAddrs) > 0 {
		initAddress = config.ClusterAddrs
	} else if config.Addr != "" {
		initAddress = []string{config.Addr}
	} else {
		return nil, fmt.Errorf("redis: no addresses configured (set Addr or ClusterAddrs)")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Storage{client: client, config: config}, nil
}

// Get returns the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := s.client.B().Get().Key(s.config.KeyPrefix + key).Build()

	value, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	return value, true, nil
}

// Set stores value under key without expiry; entry expiry is tracked by the
// cache envelope, not by Redis.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	cmd := s.client.B().Set().Key(s.config.KeyPrefix + key).Value(value).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes key.
func (s *Storage) Remove(ctx context.Context, key string) error {
	cmd := s.client.B().Del().Key(s.config.KeyPrefix + key).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Keys enumerates the keys under KeyPrefix using SCAN, with the prefix
// stripped.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	pattern := s.config.KeyPrefix + "*"

	var (
		keys   []string
		cursor uint64
	)
	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(pattern).Count(s.config.ScanCount).Build()
		entry, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}

		for _, k := range entry.Elements {
			keys = append(keys, strings.TrimPrefix(k, s.config.KeyPrefix))
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Len counts the keys under KeyPrefix.
func (s *Storage) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Ping checks that the server is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Name returns the storage name.
func (s *Storage) Name() string {
	return s.config.Name
}

// Close closes the client.
func (s *Storage) Close() error {
	s.client.Close()
	return nil
}
