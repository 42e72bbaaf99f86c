// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"go.astrophena.name/feedsync/internal/testutil"
)

func TestMemStore(t *testing.T) {
	t.Parallel()
	s := NewMemStore(t.Context(), time.Minute)
	testStore(t, s)
}

func TestMemStoreExpiry(t *testing.T) {
	t.Parallel()
	s := NewMemStore(t.Context(), 50*time.Millisecond)
	if err := s.Set(t.Context(), "key", []byte("value")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	v, err := s.Get(t.Context(), "key")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("got %q, want nil after expiry", v)
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := NewFileStore(t.Context(), path, 0)
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)

	if err := s.Set(t.Context(), "persisted", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// A second store over the same file sees earlier writes.
	s2, err := NewFileStore(t.Context(), path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, err := s2.Get(t.Context(), "persisted")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), `[{"id":"1"}]`)
}

func TestFileStoreCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(t.Context(), path, 0)
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Get(t.Context(), "feed:shared:home")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, v == nil, true)

	// The damaged file is kept next to the new one.
	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(bak), "{not json")

	if err := s.Set(t.Context(), "feed:shared:home", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s2, err := NewFileStore(t.Context(), path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, err = s2.Get(t.Context(), "feed:shared:home")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), `[]`)
}

func TestPostgresStore(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx := t.Context()
	s, err := NewPostgresStore(ctx, databaseURL, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Clean up the table before running the test.
	if _, err := s.pool.Exec(ctx, "DELETE FROM feedsync_kv"); err != nil {
		t.Fatal(err)
	}

	testStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	ctx := t.Context()
	s, err := NewRedisStore(ctx, &redis.Options{Addr: addr}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, key := range []string{"key1", "key2", "key3"} {
		if err := s.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
	}

	testStore(t, s)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	for _, dsn := range []string{"", "mem:", "file:" + filepath.Join(t.TempDir(), "s.json")} {
		s, err := Open(t.Context(), dsn, 0)
		if err != nil {
			t.Fatalf("Open(%q): %v", dsn, err)
		}
		testStore(t, s)
		s.Close()
	}

	for _, dsn := range []string{"file:", "ftp://example.com", "redis://[bad"} {
		if _, err := Open(t.Context(), dsn, 0); err == nil {
			t.Errorf("Open(%q): want error", dsn)
		}
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := t.Context()

	// Test Set and Get.
	if err := s.Set(ctx, "key1", []byte("value1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "key2", []byte("812.5")); err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), "value1")

	v, err = s.Get(ctx, "key2")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), "812.5")

	// Test overwrite.
	if err := s.Set(ctx, "key1", []byte("value2")); err != nil {
		t.Fatal(err)
	}
	v, err = s.Get(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), "value2")

	// Test Get non-existent key.
	v, err = s.Get(ctx, "key3")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("got %q, want nil", v)
	}

	// Test Delete, including a missing key.
	if err := s.Delete(ctx, "key2"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "key3"); err != nil {
		t.Fatal(err)
	}
	v, err = s.Get(ctx, "key2")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("got %q after Delete, want nil", v)
	}
}
