package store

import (
	"context"
	"strings"
)

// Open dispatches on the store URL: postgres:// and postgresql:// open a
// PostgresStore, redis:// and rediss:// a RedisStore, mem:// a MemoryStore,
// anything else is treated as a SQLite file path.
func Open(ctx context.Context, url string) (ChainStore, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return NewRedisStore(ctx, url)
	case url == "mem://":
		return NewMemoryStore(), nil
	case strings.Contains(url, "://"):
		return nil, ErrUnsupportedURL
	default:
		return NewSQLiteStore(ctx, url)
	}
}
