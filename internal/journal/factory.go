package journal

import (
	"context"
	"fmt"
	"strings"
)

// NewStore selects a backend and reports which kind it resolved to.
// Mode "auto" prefers postgres when a database URL is configured, then
// sqlite at path, then memory.
func NewStore(ctx context.Context, mode, databaseURL, path string) (Store, string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		if strings.TrimSpace(databaseURL) != "" {
			st, err := NewPostgresStore(ctx, databaseURL)
			return st, "postgres", err
		}
		if strings.TrimSpace(path) != "" {
			st, err := NewSQLiteStore(ctx, path)
			return st, "sqlite", err
		}
		return NewMemoryStore(), "memory", nil
	case "postgres":
		st, err := NewPostgresStore(ctx, databaseURL)
		return st, "postgres", err
	case "sqlite":
		st, err := NewSQLiteStore(ctx, path)
		return st, "sqlite", err
	case "memory":
		return NewMemoryStore(), "memory", nil
	default:
		return nil, "", fmt.Errorf("unknown journal mode %q", mode)
	}
}
