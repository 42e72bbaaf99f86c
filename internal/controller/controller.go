// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package controller drives a single feed: loading and paging, pull-to-refresh,
// scroll restoration and optimistic like and save toggles.
//
// Every merged list is written to the persisted cache before it is published,
// so a restarted process can show the last-known list right away.
//
// Each controller carries a generation number. It is bumped by a refresh,
// by navigating away and by clearing the cache. A fetch response that arrives
// after its generation has passed is dropped instead of being merged into a
// list it no longer belongs to. Mutations are not fenced this way.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.astrophena.name/feedsync/internal/backend"
	"go.astrophena.name/feedsync/internal/events"
	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/feedcache"
	"go.astrophena.name/feedsync/internal/logger"
	"go.astrophena.name/feedsync/internal/mutate"
	"go.astrophena.name/feedsync/internal/scroll"
)

var (
	// ErrSkipped is returned when a request was not made: a load-more while
	// another load is running or the feed is exhausted, or a fetch of an
	// authenticated feed without a token.
	ErrSkipped = errors.New("skipped")
	// ErrStale is returned when a response arrived after the controller moved
	// to a newer generation and was dropped.
	ErrStale = errors.New("stale response dropped")
	// ErrReadOnly is returned by mutations on a feed without a mutation API.
	ErrReadOnly = errors.New("feed does not support mutations")
)

// Status is the loading state of a feed.
type Status string

// Feed statuses.
const (
	Idle        Status = "idle"
	Loading     Status = "loading"
	Refreshing  Status = "refreshing"
	LoadingMore Status = "loading-more"
	Loaded      Status = "loaded"
)

func (s Status) busy() bool {
	return s == Loading || s == Refreshing || s == LoadingMore
}

// FetchError is a failed page load. The page number and the has-more flag of
// the feed are left as they were.
type FetchError struct {
	FeedKey string
	Page    int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching page %d of %q: %v", e.Page, e.FeedKey, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// State is a snapshot of a feed. Items must not be modified.
type State struct {
	Status     Status
	Items      []feed.Item
	Page       int
	HasMore    bool
	Err        error
	Generation uint64
}

// Fetcher loads a page of a feed.
type Fetcher interface {
	Fetch(ctx context.Context, src feed.Source, page, size int) (feed.Page, error)
}

// Options configure a Controller.
type Options struct {
	Source feed.Source
	// PageSize is used when the source doesn't set one.
	PageSize int
	Fetcher  Fetcher
	Cache    *feedcache.Cache
	// Restorer decides on scroll restoration. If nil, one with the default
	// detail screens is created over Cache.
	Restorer *scroll.Restorer
	// API performs like and save calls. If nil, mutations fail with
	// ErrReadOnly.
	API mutate.API
	// Bus receives state changes. If nil, a private bus is created; see
	// [Controller.Bus].
	Bus *events.Bus
	// Merger merges pages. The zero value shuffles with math/rand/v2.
	Merger          feed.Merger
	Logger          *slog.Logger
	Metrics         *Metrics
	MutationMetrics *mutate.Metrics
}

// Controller owns the in-memory list of one feed.
type Controller struct {
	src      feed.Source
	size     int
	fetcher  Fetcher
	cache    *feedcache.Cache
	restorer *scroll.Restorer
	bus      *events.Bus
	merger   feed.Merger
	log      *slog.Logger
	metrics  *Metrics
	mutator  *mutate.Mutator

	mu       sync.Mutex
	state    State
	seq      uint64 // bumped by every fetch; the latest one owns Status
	hydrated bool
}

var tracer = otel.Tracer("go.astrophena.name/feedsync/internal/controller")

// New returns a Controller for opts.Source.
func New(opts Options) (*Controller, error) {
	if err := opts.Source.Validate(); err != nil {
		return nil, err
	}
	if opts.Fetcher == nil {
		return nil, errors.New("controller: Fetcher is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("controller: Cache is required")
	}
	c := &Controller{
		src:      opts.Source,
		size:     opts.Source.Size(opts.PageSize),
		fetcher:  opts.Fetcher,
		cache:    opts.Cache,
		restorer: opts.Restorer,
		bus:      opts.Bus,
		merger:   opts.Merger,
		log:      logger.Or(opts.Logger).With("feed", opts.Source.Key),
		metrics:  opts.Metrics,
		state:    State{Status: Idle},
	}
	if c.restorer == nil {
		c.restorer = scroll.NewRestorer(c.cache, nil, c.log)
	}
	if c.bus == nil {
		c.bus = new(events.Bus)
	}
	if opts.API != nil {
		c.mutator = &mutate.Mutator{
			API:       opts.API,
			Target:    c,
			Logger:    c.log,
			Metrics:   opts.MutationMetrics,
			OnSettled: c.mutationSettled,
		}
	}
	return c, nil
}

// Source returns the feed source the controller drives.
func (c *Controller) Source() feed.Source { return c.src }

// Bus returns the bus the controller publishes to.
func (c *Controller) Bus() *events.Bus { return c.bus }

// State returns a snapshot of the feed.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Hydrate shows the persisted list, if any, without touching the network.
// It does nothing after the first call.
func (c *Controller) Hydrate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)
}

func (c *Controller) hydrateLocked(ctx context.Context) {
	if c.hydrated {
		return
	}
	c.hydrated = true
	items := c.cache.Read(ctx, c.src.Key)
	if len(items) == 0 {
		return
	}
	c.log.Debug("hydrated from cache", "items", len(items))
	c.state.Items = items
	c.emitItemsLocked()
	c.metrics.items(c.src.Key, len(items))
}

// Load fetches the first page and replaces the list with it, keeping the
// server's order.
func (c *Controller) Load(ctx context.Context) error {
	return c.run(ctx, func() (fetchOp, error) {
		c.hydrateLocked(ctx)
		return fetchOp{page: 1, mode: feed.ReplaceNoReorder, busy: Loading}, nil
	})
}

// Refresh reloads the first page. A manual refresh of a source that allows
// reordering shuffles the page. The has-more flag is reset before the fetch
// and older in-flight fetches are dropped when they arrive.
func (c *Controller) Refresh(ctx context.Context, manual bool) error {
	err := c.run(ctx, func() (fetchOp, error) {
		c.state.HasMore = true
		c.bumpLocked("refresh")
		c.bus.Publish(events.Event{Kind: events.RefreshState, FeedKey: c.src.Key, Refreshing: true})
		return fetchOp{
			page:    1,
			mode:    feed.Replace,
			reorder: manual && c.src.Reorder,
			busy:    Refreshing,
		}, nil
	})
	c.bus.Publish(events.Event{Kind: events.RefreshState, FeedKey: c.src.Key, Refreshing: false})
	return err
}

// LoadMore appends the next page. It returns ErrSkipped without fetching if a
// load is already running or the last page wasn't full.
func (c *Controller) LoadMore(ctx context.Context) error {
	return c.run(ctx, func() (fetchOp, error) {
		if c.state.Status.busy() || !c.state.HasMore {
			c.log.Debug("load more dropped", "status", c.state.Status, "has_more", c.state.HasMore)
			return fetchOp{}, ErrSkipped
		}
		return fetchOp{page: c.state.Page + 1, mode: feed.Append, busy: LoadingMore}, nil
	})
}

// Focus is called when the feed screen gains focus, coming from the route
// named previous.
//
// When previous is a detail screen and a checkpoint exists, the checkpointed
// page is loaded without reordering and a non-animated scroll to the saved
// offset is published. Otherwise the checkpoint is dropped and the first page
// is loaded.
func (c *Controller) Focus(ctx context.Context, previous string) error {
	if c.src.ClearOnFocus {
		if err := c.Clear(ctx); err != nil {
			c.log.Warn("clearing cache on focus", "error", err)
		}
	} else {
		c.Hydrate(ctx)
	}

	cp, ok := c.restorer.OnFocus(ctx, c.src.Key, previous)
	if !ok {
		return c.Load(ctx)
	}

	mode := feed.Append
	if cp.Page == 1 {
		mode = feed.ReplaceNoReorder
	}
	return c.run(ctx, func() (fetchOp, error) {
		return fetchOp{
			page: cp.Page,
			mode: mode,
			busy: Loading,
			after: func() {
				c.bus.Publish(events.Event{
					Kind:    events.ScrollTo,
					FeedKey: c.src.Key,
					Offset:  cp.Offset,
				})
			},
		}, nil
	})
}

// Blur is called right before navigating away from the feed with the current
// scroll offset. It saves a checkpoint and drops fetches still in flight.
func (c *Controller) Blur(ctx context.Context, offset float64) error {
	c.mu.Lock()
	page := max(c.state.Page, 1)
	c.bumpLocked("navigate away")
	c.mu.Unlock()
	return c.restorer.Capture(ctx, scroll.Checkpoint{FeedKey: c.src.Key, Page: page, Offset: offset})
}

// Scrolled reports user scrolling to observers such as a hiding bottom bar.
func (c *Controller) Scrolled(offset float64) {
	c.bus.Publish(events.Event{Kind: events.ScrollActivity, FeedKey: c.src.Key, Offset: offset})
}

// Clear drops the persisted and in-memory list and the scroll checkpoint.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrated = true
	c.bumpLocked("clear")
	c.state.Items = nil
	c.state.Page = 0
	c.state.HasMore = false
	c.state.Err = nil
	if !c.state.Status.busy() {
		c.state.Status = Idle
	}
	c.restorer.Discard(ctx, c.src.Key)
	c.emitItemsLocked()
	c.emitStatusLocked()
	c.metrics.items(c.src.Key, 0)
	return c.cache.Clear(ctx, c.src.Key)
}

// Item implements [mutate.Target].
func (c *Controller) Item(id string) (feed.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := feed.Index(c.state.Items, id)
	if i < 0 {
		return feed.Item{}, false
	}
	return c.state.Items[i], true
}

// Apply implements [mutate.Target]. The updated list is persisted and
// published before Apply returns.
func (c *Controller) Apply(ctx context.Context, id string, fn func(*feed.Item)) (feed.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := feed.Update(c.state.Items, id, fn)
	if !ok {
		return feed.Item{}, mutate.ErrNotFound
	}
	c.state.Items = items
	c.persistLocked(ctx)
	c.emitItemsLocked()
	return items[feed.Index(items, id)], nil
}

// ToggleLike likes or unlikes an item optimistically.
func (c *Controller) ToggleLike(ctx context.Context, id string) (mutate.Result, error) {
	if c.mutator == nil {
		return mutate.Result{}, ErrReadOnly
	}
	return c.mutator.ToggleLike(ctx, id)
}

// ToggleSave saves or unsaves an item optimistically. Saving asks pick for a
// collection first.
func (c *Controller) ToggleSave(ctx context.Context, id string, pick mutate.Picker) (mutate.Result, error) {
	if c.mutator == nil {
		return mutate.Result{}, ErrReadOnly
	}
	return c.mutator.ToggleSave(ctx, id, pick)
}

func (c *Controller) mutationSettled(res mutate.Result) {
	c.bus.Publish(events.Event{
		Kind:    events.MutationSettled,
		FeedKey: c.src.Key,
		Mutation: &events.Mutation{
			ID:     res.ID,
			Kind:   string(res.Kind),
			State:  string(res.State),
			ItemID: res.ItemID,
		},
	})
}

type fetchOp struct {
	page    int
	mode    feed.Mode
	reorder bool
	busy    Status
	after   func() // called under the lock after a successful merge
}

// run plans a fetch under the lock, makes it without the lock and merges the
// result under the lock again.
func (c *Controller) run(ctx context.Context, plan func() (fetchOp, error)) error {
	c.mu.Lock()
	op, err := plan()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.state.Generation
	c.seq++
	seq := c.seq
	c.state.Status = op.busy
	c.emitStatusLocked()
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "fetch", trace.WithAttributes(
		attribute.String("feedsync.feed", c.src.Key),
		attribute.Int("feedsync.page", op.page),
		attribute.String("feedsync.mode", op.mode.String()),
	))
	defer span.End()

	start := time.Now()
	page, err := c.fetcher.Fetch(ctx, c.src, op.page, c.size)
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	latest := seq == c.seq

	switch {
	case errors.Is(err, backend.ErrNoToken):
		c.log.Debug("skipping fetch without token", "page", op.page)
		c.settleLocked(latest)
		c.metrics.fetch(c.src.Key, "skipped", elapsed)
		return ErrSkipped
	case gen != c.state.Generation:
		c.log.Debug("dropping stale response", "page", op.page, "generation", gen, "current", c.state.Generation)
		c.settleLocked(latest)
		c.metrics.fetch(c.src.Key, "stale", elapsed)
		return ErrStale
	case err != nil:
		ferr := &FetchError{FeedKey: c.src.Key, Page: op.page, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("fetch failed", "page", op.page, "error", err)
		c.state.Err = ferr
		if latest {
			c.state.Status = Loaded
		}
		c.emitStatusLocked()
		c.metrics.fetch(c.src.Key, "error", elapsed)
		return ferr
	}

	items := c.merger.Merge(c.state.Items, page, op.mode, op.reorder)
	c.state.Items = items
	c.persistLocked(ctx)
	c.state.Page = page.Number
	c.state.HasMore = page.HasMore
	c.state.Err = nil
	if latest {
		c.state.Status = Loaded
	}
	c.log.Debug("merged page", "page", page.Number, "mode", op.mode, "fetched", len(page.Items), "items", len(items), "has_more", page.HasMore)
	c.emitItemsLocked()
	c.emitStatusLocked()
	if op.after != nil {
		op.after()
	}
	c.metrics.fetch(c.src.Key, "ok", elapsed)
	c.metrics.items(c.src.Key, len(items))
	return nil
}

// settleLocked ends a fetch that changed nothing.
func (c *Controller) settleLocked(latest bool) {
	if !latest {
		return
	}
	if c.state.Page > 0 {
		c.state.Status = Loaded
	} else {
		c.state.Status = Idle
	}
	c.emitStatusLocked()
}

func (c *Controller) bumpLocked(reason string) {
	c.state.Generation++
	c.log.Debug("new generation", "generation", c.state.Generation, "reason", reason)
}

func (c *Controller) persistLocked(ctx context.Context) {
	if err := c.cache.Write(ctx, c.src.Key, c.state.Items); err != nil {
		c.log.Warn("persisting feed", "error", err)
	}
}

func (c *Controller) emitItemsLocked() {
	c.bus.Publish(events.Event{
		Kind:    events.ItemsChanged,
		FeedKey: c.src.Key,
		Items:   c.state.Items,
		Page:    c.state.Page,
		HasMore: c.state.HasMore,
	})
}

func (c *Controller) emitStatusLocked() {
	e := events.Event{
		Kind:    events.StatusChanged,
		FeedKey: c.src.Key,
		Status:  string(c.state.Status),
		Page:    c.state.Page,
		HasMore: c.state.HasMore,
	}
	if c.state.Err != nil {
		e.Err = c.state.Err.Error()
	}
	c.bus.Publish(e)
}
