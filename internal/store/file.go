// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.astrophena.name/feedsync/internal/atomicio"
	"go.astrophena.name/feedsync/internal/logger"
)

// FileStore is a JSON file implementation of the [Store] interface. The whole
// file is kept in memory and rewritten on every change.
type FileStore struct {
	path string
	ttl  time.Duration

	mu    sync.Mutex
	data  map[string]entry
	dirty bool // access times changed since the last write
}

type fileContents struct {
	Data map[string]entry `json:"data"`
}

type entry struct {
	Value        string    `json:"value"`
	LastAccessed time.Time `json:"last_accessed"`
}

// NewFileStore creates a new [FileStore] backed by the file at path with the
// given TTL. The file is created on first write.
//
// A file that can't be parsed is moved to path + ".bak" and the store starts
// empty, so a damaged cache never keeps the feeds from loading.
func NewFileStore(ctx context.Context, path string, ttl time.Duration) (*FileStore, error) {
	s := &FileStore{
		path: path,
		ttl:  ttl,
		data: make(map[string]entry),
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var fc fileContents
		if err := json.Unmarshal(b, &fc); err != nil {
			if err := s.moveAside(ctx, err); err != nil {
				return nil, err
			}
			break
		}
		if fc.Data != nil {
			s.data = fc.Data
		}
	}

	if ttl > 0 {
		if err := s.sweep(); err != nil {
			return nil, err
		}
		go s.cleanup(ctx)
	}
	return s, nil
}

func (s *FileStore) moveAside(ctx context.Context, parseErr error) error {
	bak := s.path + ".bak"
	if err := os.Rename(s.path, bak); err != nil {
		return fmt.Errorf("store: moving aside unparseable %s: %w", s.path, err)
	}
	logger.Get(ctx).Warn("store file is corrupt, starting empty", "path", s.path, "backup", bak, "error", parseErr)
	return nil
}

func (s *FileStore) cleanup(ctx context.Context) {
	ticker := time.NewTicker(min(s.ttl/2, 24*time.Hour))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (s *FileStore) sweep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed bool
	for key, e := range s.data {
		if expired(e.LastAccessed, s.ttl) {
			delete(s.data, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	b, err := json.Marshal(fileContents{Data: s.data})
	if err != nil {
		return err
	}
	if err := atomicio.WriteFile(s.path, b, 0o600); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Get retrieves a value for a given key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	if expired(e.LastAccessed, s.ttl) {
		delete(s.data, key)
		s.dirty = true
		return nil, nil
	}
	if s.ttl > 0 {
		e.LastAccessed = time.Now()
		s.data[key] = e
		s.dirty = true
	}
	return []byte(e.Value), nil
}

// Set stores a value for a given key.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{
		Value:        string(value),
		LastAccessed: time.Now(),
	}
	return s.flushLocked()
}

// Delete removes a key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

// Close writes out access times recorded since the last change.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.flushLocked()
}
