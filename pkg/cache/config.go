package cache

import (
	"fmt"
	"time"
)

// Backend selects where mirrored slots live.
type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendRedis   Backend = "redis"
	BackendLayered Backend = "layered"
)

// Config describes a cache. Redis settings are ignored by the memory backend.
type Config struct {
	Backend       Backend
	MemoryMaxSize int
	// MemoryTTL caps how long the layered L1 serves a key without Redis.
	MemoryTTL time.Duration
	Redis     RedisConfig
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.PoolTimeout == 0 {
		c.PoolTimeout = 30 * time.Second
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 5
	}
	if c.Prefix == "" {
		c.Prefix = "sentinelx"
	}
	return c
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxSize         int
	cleanupInterval time.Duration
}

// WithMemoryMaxSize bounds the number of entries before LRU eviction.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *memoryConfig) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// New builds the cache selected by cfg.Backend.
func New(cfg Config) (Service, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)), nil
	case BackendRedis:
		return NewRedisCache(cfg.Redis)
	case BackendLayered:
		rc, err := NewRedisCache(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewLayeredCache(rc, cfg.MemoryMaxSize, cfg.MemoryTTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
