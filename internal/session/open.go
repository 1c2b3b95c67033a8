package session

import (
	"context"
	"fmt"
)

// Config selects and configures a repository backend.
type Config struct {
	Backend  string // "memory", "file", "redis"
	FilePath string
	Redis    RedisConfig
}

// Open builds the repository named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.FilePath)
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("session: unknown backend %q", cfg.Backend)
	}
}
