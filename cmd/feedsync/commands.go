// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.astrophena.name/feedsync/internal/backend"
	"go.astrophena.name/feedsync/internal/cli"
	"go.astrophena.name/feedsync/internal/controller"
	"go.astrophena.name/feedsync/internal/events"
	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/mutate"
	"go.astrophena.name/feedsync/internal/scroll"
)

type command struct {
	usage    string
	min, max int // arguments after the feed key
	run      func(a *app, ctx context.Context, c *controller.Controller, args []string) error
}

var commands = map[string]command{
	"show":    {run: (*app).show},
	"load":    {run: (*app).load},
	"more":    {usage: "[pages]", max: 1, run: (*app).more},
	"refresh": {run: (*app).refresh},
	"leave":   {usage: "<offset> [pages]", min: 1, max: 2, run: (*app).leave},
	"back":    {usage: "[route]", max: 1, run: (*app).back},
	"clear":   {run: (*app).clear},
	"like":    {usage: "<item>", min: 1, max: 1, run: (*app).like},
	"save":    {usage: "<item> [collection]", min: 1, max: 2, run: (*app).save},
	"unsave":  {usage: "<item>", min: 1, max: 1, run: (*app).unsave},
}

// skipped turns a fetch skipped for lack of a token into a warning.
func (a *app) skipped(err error) error {
	if errors.Is(err, controller.ErrSkipped) {
		a.log.Warn("feed requires a token, showing persisted items only")
		return nil
	}
	return err
}

func (a *app) show(ctx context.Context, c *controller.Controller, _ []string) error {
	c.Hydrate(ctx)
	out := a.snapshot(c)
	if page, offset, ok := a.cache.LoadCheckpoint(ctx, c.Source().Key); ok {
		out.Checkpoint = &scroll.Checkpoint{FeedKey: c.Source().Key, Page: page, Offset: offset}
	}
	return a.printState(ctx, out)
}

func (a *app) load(ctx context.Context, c *controller.Controller, _ []string) error {
	if err := a.skipped(c.Focus(ctx, "")); err != nil {
		return err
	}
	return a.printState(ctx, a.snapshot(c))
}

func (a *app) more(ctx context.Context, c *controller.Controller, args []string) error {
	pages := 1
	if len(args) > 0 {
		var err error
		if pages, err = parseCount(args[0], "pages"); err != nil {
			return err
		}
	}
	if err := a.loadPages(ctx, c, pages+1); err != nil {
		return err
	}
	return a.printState(ctx, a.snapshot(c))
}

// loadPages opens the feed and loads up to n pages.
func (a *app) loadPages(ctx context.Context, c *controller.Controller, n int) error {
	if err := a.skipped(c.Focus(ctx, "")); err != nil {
		return err
	}
	for range n - 1 {
		err := c.LoadMore(ctx)
		if errors.Is(err, controller.ErrSkipped) {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) refresh(ctx context.Context, c *controller.Controller, _ []string) error {
	c.Hydrate(ctx)
	if err := a.skipped(c.Refresh(ctx, true)); err != nil {
		return err
	}
	return a.printState(ctx, a.snapshot(c))
}

func (a *app) leave(ctx context.Context, c *controller.Controller, args []string) error {
	offset, err := strconv.ParseFloat(args[0], 64)
	if err != nil || offset < 0 {
		return fmt.Errorf("%w: offset must be a non-negative number, got %q", cli.ErrInvalidArgs, args[0])
	}
	pages := 1
	if len(args) > 1 {
		if pages, err = parseCount(args[1], "pages"); err != nil {
			return err
		}
	}
	if err := a.loadPages(ctx, c, pages); err != nil {
		return err
	}
	if err := c.Blur(ctx, offset); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return a.printCheckpoint(ctx, scroll.Checkpoint{
		FeedKey: c.Source().Key,
		Page:    max(c.State().Page, 1),
		Offset:  offset,
	})
}

func (a *app) back(ctx context.Context, c *controller.Controller, args []string) error {
	route := a.detailScreen()
	if len(args) > 0 {
		route = args[0]
	}

	evs, unsubscribe := c.Bus().Subscribe()
	defer unsubscribe()

	if err := a.skipped(c.Focus(ctx, route)); err != nil {
		return err
	}

	out := a.snapshot(c)
	for len(evs) > 0 {
		if e := <-evs; e.Kind == events.ScrollTo && e.FeedKey == c.Source().Key {
			out.ScrollTo = &e.Offset
		}
	}
	return a.printState(ctx, out)
}

func (a *app) clear(ctx context.Context, c *controller.Controller, _ []string) error {
	if err := c.Clear(ctx); err != nil {
		return err
	}
	return a.printState(ctx, a.snapshot(c))
}

func (a *app) requireToken(what string) error {
	if a.token == "" {
		return fmt.Errorf("%w: %s requires a token, set -token or FEEDSYNC_TOKEN", cli.ErrInvalidArgs, what)
	}
	return nil
}

// item returns the item id from the persisted list, loading the first page
// if it's not there.
func (a *app) item(ctx context.Context, c *controller.Controller, id string) (feed.Item, error) {
	c.Hydrate(ctx)
	if it, ok := c.Item(id); ok {
		return it, nil
	}
	if err := a.skipped(c.Load(ctx)); err != nil {
		return feed.Item{}, err
	}
	if it, ok := c.Item(id); ok {
		return it, nil
	}
	return feed.Item{}, fmt.Errorf("%w: item %q is not in feed %q", cli.ErrInvalidArgs, id, c.Source().Key)
}

func (a *app) like(ctx context.Context, c *controller.Controller, args []string) error {
	if err := a.requireToken("like"); err != nil {
		return err
	}
	if _, err := a.item(ctx, c, args[0]); err != nil {
		return err
	}
	res, err := c.ToggleLike(ctx, args[0])
	if err != nil {
		return err
	}
	return a.printMutation(ctx, res)
}

func (a *app) save(ctx context.Context, c *controller.Controller, args []string) error {
	if err := a.requireToken("save"); err != nil {
		return err
	}
	it, err := a.item(ctx, c, args[0])
	if err != nil {
		return err
	}
	if it.IsSaved {
		return fmt.Errorf("%w: item %q is already saved, use unsave", cli.ErrInvalidArgs, it.ID)
	}

	var want string
	if len(args) > 1 {
		want = args[1]
	}
	pick := func(ctx context.Context, cols []backend.Collection) (string, bool, error) {
		if want != "" {
			for _, col := range cols {
				if col.ID == want || col.Name == want {
					return col.ID, true, nil
				}
			}
			return "", false, fmt.Errorf("%w: no collection %q", cli.ErrInvalidArgs, want)
		}
		if len(cols) == 1 {
			return cols[0].ID, true, nil
		}
		return "", false, a.printCollections(ctx, cols)
	}

	res, err := c.ToggleSave(ctx, it.ID, pick)
	if errors.Is(err, mutate.ErrCanceled) {
		return fmt.Errorf("%w: choose a collection: save %s %s <collection>", cli.ErrInvalidArgs, c.Source().Key, it.ID)
	}
	if err != nil {
		return err
	}
	return a.printMutation(ctx, res)
}

func (a *app) unsave(ctx context.Context, c *controller.Controller, args []string) error {
	if err := a.requireToken("unsave"); err != nil {
		return err
	}
	it, err := a.item(ctx, c, args[0])
	if err != nil {
		return err
	}
	if !it.IsSaved {
		return fmt.Errorf("%w: item %q is not saved", cli.ErrInvalidArgs, it.ID)
	}
	res, err := c.ToggleSave(ctx, it.ID, nil)
	if err != nil {
		return err
	}
	return a.printMutation(ctx, res)
}
