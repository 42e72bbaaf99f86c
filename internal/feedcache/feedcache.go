// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feedcache persists the last-known list of every feed and the scroll
// checkpoints taken when leaving a feed.
//
// Lists are stored as JSON arrays and always written whole. Checkpoints are
// stored as two plain strings, the page number and the scroll offset.
package feedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/logger"
	"go.astrophena.name/feedsync/internal/store"
)

// SharedNamespace holds cached data when no user can be identified.
const SharedNamespace = "shared"

// Cache reads and writes feed lists and checkpoints in a [store.Store].
type Cache struct {
	st  store.Store
	ns  string
	log *slog.Logger
}

// New returns a Cache keeping its data in st under the namespace ns. An empty
// namespace means [SharedNamespace]. A nil log discards messages.
func New(st store.Store, ns string, log *slog.Logger) *Cache {
	if ns == "" {
		ns = SharedNamespace
	}
	return &Cache{st: st, ns: ns, log: logger.Or(log)}
}

// Namespace returns the namespace the cache keeps its keys under.
func (c *Cache) Namespace() string { return c.ns }

// NamespaceFromToken derives a per-user namespace from the "sub" claim of a
// JWT bearer token. The signature is not verified; the namespace only keeps
// cached lists of different accounts apart. Tokens that are empty or can't be
// parsed map to [SharedNamespace].
func NamespaceFromToken(token string) string {
	if token == "" {
		return SharedNamespace
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return SharedNamespace
	}
	if claims.Subject == "" {
		return SharedNamespace
	}
	return "user-" + claims.Subject
}

func (c *Cache) listKey(feedKey string) string {
	return "feed:" + c.ns + ":" + feedKey
}

func (c *Cache) pageKey(feedKey string) string {
	return "scroll:" + c.ns + ":" + feedKey + ":page"
}

func (c *Cache) offsetKey(feedKey string) string {
	return "scroll:" + c.ns + ":" + feedKey + ":offset"
}

// Read returns the persisted list for feedKey. A missing, unreadable or
// corrupt entry yields an empty list; the failure is only logged.
func (c *Cache) Read(ctx context.Context, feedKey string) []feed.Item {
	b, err := c.st.Get(ctx, c.listKey(feedKey))
	if err != nil {
		c.log.Warn("reading cached feed", "feed", feedKey, "error", err)
		return nil
	}
	if b == nil {
		return nil
	}
	var items []feed.Item
	if err := json.Unmarshal(b, &items); err != nil {
		c.log.Warn("discarding corrupt cached feed", "feed", feedKey, "error", err)
		return nil
	}
	return items
}

// Write replaces the persisted list for feedKey.
func (c *Cache) Write(ctx context.Context, feedKey string, items []feed.Item) error {
	if items == nil {
		items = []feed.Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding feed %q: %w", feedKey, err)
	}
	if err := c.st.Set(ctx, c.listKey(feedKey), b); err != nil {
		return fmt.Errorf("writing feed %q: %w", feedKey, err)
	}
	return nil
}

// Clear removes the persisted list for feedKey.
func (c *Cache) Clear(ctx context.Context, feedKey string) error {
	return c.st.Delete(ctx, c.listKey(feedKey))
}

// SaveCheckpoint persists the page number and scroll offset for feedKey.
func (c *Cache) SaveCheckpoint(ctx context.Context, feedKey string, page int, offset float64) error {
	if err := c.st.Set(ctx, c.pageKey(feedKey), []byte(strconv.Itoa(page))); err != nil {
		return err
	}
	return c.st.Set(ctx, c.offsetKey(feedKey), []byte(strconv.FormatFloat(offset, 'f', -1, 64)))
}

// LoadCheckpoint returns the checkpoint for feedKey. The last result is false
// if there is no usable checkpoint.
func (c *Cache) LoadCheckpoint(ctx context.Context, feedKey string) (page int, offset float64, ok bool) {
	pb, err := c.st.Get(ctx, c.pageKey(feedKey))
	if err != nil || pb == nil {
		if err != nil {
			c.log.Warn("reading scroll checkpoint", "feed", feedKey, "error", err)
		}
		return 0, 0, false
	}
	ob, err := c.st.Get(ctx, c.offsetKey(feedKey))
	if err != nil {
		c.log.Warn("reading scroll checkpoint", "feed", feedKey, "error", err)
		return 0, 0, false
	}

	page, err = strconv.Atoi(string(pb))
	if err != nil || page < 1 {
		c.log.Warn("discarding corrupt scroll checkpoint", "feed", feedKey, "page", string(pb))
		return 0, 0, false
	}
	if ob != nil {
		offset, err = strconv.ParseFloat(string(ob), 64)
		if err != nil {
			c.log.Warn("discarding corrupt scroll offset", "feed", feedKey, "offset", string(ob))
			offset = 0
		}
	}
	return page, offset, true
}

// ClearCheckpoint removes the checkpoint for feedKey.
func (c *Cache) ClearCheckpoint(ctx context.Context, feedKey string) error {
	return errors.Join(
		c.st.Delete(ctx, c.pageKey(feedKey)),
		c.st.Delete(ctx, c.offsetKey(feedKey)),
	)
}
