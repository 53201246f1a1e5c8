package main

import (
	"context"
	"fmt"

	"kntu-schedule/pkg/storage"
	"kntu-schedule/pkg/storage/bloom"
	"kntu-schedule/pkg/storage/memory"
	"kntu-schedule/pkg/storage/postgres"
	"kntu-schedule/pkg/storage/redis"
)

// storageSettings select the persistent tier. The session tier is always an
// in-process map that ends with the process. So is the default "memory"
// persistent tier: saved settings and cached data survive a run only with
// SCHEDULE_STORAGE=redis or postgres.
type storageSettings struct {
	Backend           string  `env:"SCHEDULE_STORAGE" envDefault:"memory"`
	SessionQuotaBytes int     `env:"SCHEDULE_SESSION_QUOTA" envDefault:"5242880"`
	RedisAddr         string  `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string  `env:"REDIS_PASSWORD"`
	RedisKeyPrefix    string  `env:"REDIS_KEY_PREFIX" envDefault:"schedule:"`
	PostgresDSN       string  `env:"POSTGRES_DSN"`
	Bloom             bool    `env:"SCHEDULE_BLOOM"`
	BloomItems        uint    `env:"SCHEDULE_BLOOM_ITEMS" envDefault:"10000"`
	BloomFPRate       float64 `env:"SCHEDULE_BLOOM_FP_RATE" envDefault:"0.01"`
}

// ephemeral reports whether the persistent tier ends with the process.
func (cfg storageSettings) ephemeral() bool {
	return cfg.Backend == "" || cfg.Backend == "memory"
}

func openTiers(ctx context.Context, cfg storageSettings) (storage.Tiers, error) {
	persistent, err := openPersistent(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Bloom && !cfg.ephemeral() {
		filtered, err := bloom.New(ctx, persistent, cfg.BloomItems, cfg.BloomFPRate)
		if err != nil {
			persistent.Close()
			return nil, err
		}
		persistent = filtered
	}

	return storage.Tiers{
		storage.Session:    memory.New(memory.Config{Name: "session", MaxBytes: cfg.SessionQuotaBytes}),
		storage.Persistent: persistent,
	}, nil
}

func openPersistent(cfg storageSettings) (storage.Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(memory.Config{Name: "persistent"}), nil
	case "redis":
		rc := redis.DefaultConfig()
		rc.Name = "persistent"
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.KeyPrefix = cfg.RedisKeyPrefix
		s, err := redis.New(rc)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		pc := postgres.DefaultConfig()
		pc.Name = "persistent"
		pc.DSN = cfg.PostgresDSN
		s, err := postgres.New(pc)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown SCHEDULE_STORAGE %q (memory, redis, postgres)", cfg.Backend)
	}
}
