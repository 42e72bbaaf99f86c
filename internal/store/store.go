// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a key-value store backed in-memory, by a JSON file,
// PostgreSQL or Redis.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a generic interface for a key-value store.
type Store interface {
	// Get retrieves a value for a given key.
	// It must return (nil, nil) if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value for a given key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close closes the store and releases any resources.
	Close() error
}

// Open opens a store described by dsn:
//
//   - "" or "mem:" for an in-memory store;
//   - "file:/path/to/store.json" for a JSON file;
//   - "postgres://..." or "postgresql://..." for PostgreSQL;
//   - "redis://..." or "rediss://..." for Redis.
//
// Entries not accessed for longer than ttl are removed. A ttl of zero or less
// keeps entries forever.
func Open(ctx context.Context, dsn string, ttl time.Duration) (Store, error) {
	scheme, rest, _ := strings.Cut(dsn, ":")
	switch scheme {
	case "", "mem":
		return NewMemStore(ctx, ttl), nil
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("store: %q: missing file path", dsn)
		}
		return NewFileStore(ctx, rest, ttl)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, dsn, ttl)
	case "redis", "rediss":
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return NewRedisStore(ctx, opts, ttl)
	}
	return nil, fmt.Errorf("store: unsupported scheme %q", scheme)
}

func expired(lastAccessed time.Time, ttl time.Duration) bool {
	return ttl > 0 && time.Since(lastAccessed) > ttl
}
