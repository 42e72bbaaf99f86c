// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package scroll remembers where a feed was scrolled to when the user opened
// a detail screen, and decides whether to go back there when the feed
// regains focus.
package scroll

import (
	"context"
	"log/slog"
	"slices"

	"go.astrophena.name/feedsync/internal/feedcache"
	"go.astrophena.name/feedsync/internal/logger"
)

// DefaultDetailScreens are the routes a feed restores its position after
// returning from, unless configured otherwise.
var DefaultDetailScreens = []string{"PostDetail"}

// Checkpoint is a saved position in a feed.
type Checkpoint struct {
	FeedKey string  `json:"feed"`
	Page    int     `json:"page"`
	Offset  float64 `json:"offset"`
}

// Restorer captures and replays checkpoints.
//
// Whether to restore is decided by comparing the name of the previous route
// with a fixed allow-list. There is no deeper look at the navigation stack.
type Restorer struct {
	cache  *feedcache.Cache
	detail []string
	log    *slog.Logger
}

// NewRestorer returns a Restorer persisting checkpoints in cache. A nil or
// empty detail list means [DefaultDetailScreens].
func NewRestorer(cache *feedcache.Cache, detail []string, log *slog.Logger) *Restorer {
	if len(detail) == 0 {
		detail = DefaultDetailScreens
	}
	return &Restorer{cache: cache, detail: slices.Clone(detail), log: logger.Or(log)}
}

// IsDetail reports whether route is on the allow-list.
func (r *Restorer) IsDetail(route string) bool {
	return slices.Contains(r.detail, route)
}

// Capture saves cp. It is called right before navigating away from a feed.
func (r *Restorer) Capture(ctx context.Context, cp Checkpoint) error {
	if cp.Page < 1 {
		cp.Page = 1
	}
	r.log.Debug("saving scroll checkpoint", "feed", cp.FeedKey, "page", cp.Page, "offset", cp.Offset)
	return r.cache.SaveCheckpoint(ctx, cp.FeedKey, cp.Page, cp.Offset)
}

// OnFocus is called when feedKey regains focus coming from the route named
// previous. If previous is a detail screen and a checkpoint exists, it is
// returned with ok set. Otherwise any checkpoint is discarded.
func (r *Restorer) OnFocus(ctx context.Context, feedKey, previous string) (cp Checkpoint, ok bool) {
	if !r.IsDetail(previous) {
		r.Discard(ctx, feedKey)
		return Checkpoint{}, false
	}
	page, offset, ok := r.cache.LoadCheckpoint(ctx, feedKey)
	if !ok {
		return Checkpoint{}, false
	}
	r.log.Debug("restoring scroll checkpoint", "feed", feedKey, "page", page, "offset", offset, "from", previous)
	return Checkpoint{FeedKey: feedKey, Page: page, Offset: offset}, true
}

// Discard drops the checkpoint of feedKey.
func (r *Restorer) Discard(ctx context.Context, feedKey string) {
	if err := r.cache.ClearCheckpoint(ctx, feedKey); err != nil {
		r.log.Warn("discarding scroll checkpoint", "feed", feedKey, "error", err)
	}
}
