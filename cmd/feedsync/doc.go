// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Feedsync keeps a local, persisted copy of paginated content feeds and applies
likes and saves optimistically, rolling them back when the backend disagrees.

# Usage

	$ feedsync [flags...] <command> [args...]

# Commands

  - feeds: list configured feeds.
  - show <feed>: print the persisted list and scroll checkpoint without
    touching the network.
  - load <feed>: open the feed as if selected from a tab bar: drop any
    scroll checkpoint and load the first page.
  - more <feed> [pages]: load the first page and then the given number of
    further pages (1 by default).
  - refresh <feed>: pull to refresh. Feeds configured with reorder = True
    are shuffled.
  - leave <feed> <offset> [pages]: load pages (1 by default) and navigate
    to a detail screen at the given scroll offset, saving a checkpoint.
  - back <feed> [route]: return to the feed from route (the first detail
    screen by default), restoring the checkpointed page and offset.
  - clear <feed>: drop the persisted list and checkpoint.
  - like <feed> <item>: like the item, or unlike it if already liked.
  - save <feed> <item> [collection]: save the item into a collection named
    or identified by collection. Without it, the only collection is used, or
    the available ones are listed.
  - unsave <feed> <item>: remove the item from all collections.

# Environment Variables

  - FEEDSYNC_CONFIG: path to the configuration file, if -config is not set.
    Defaults to config.star in the current directory.
  - FEEDSYNC_STORE: store location, if -store is not set. Defaults to
    file:$XDG_STATE_HOME/feedsync/store.json.
  - FEEDSYNC_TOKEN: backend bearer token, if -token is not set. Persisted
    data is kept apart for every user named in the token.

# Stores

The -store flag accepts:

  - mem: for an in-memory store that forgets everything on exit;
  - file:/path/to/store.json for a JSON file;
  - postgres://... for PostgreSQL;
  - redis://... for Redis.

# Configuration

Feeds are defined in a Starlark file:

	backend = "https://api.example.com/v1"
	page_size = 10
	detail_screens = ["PostDetail", "VideoDetail"]

	feeds = [
	    source(key = "home", endpoint = "/ugc/feed", items = "ugcs", reorder = True),
	    source(key = "jobs", endpoint = "/jobs", items = "jobs", kind = "job", auth = True),
	    source(key = "tags", endpoint = "/search/tags", clear_on_focus = True),
	    source(key = "blog", syndication = "https://example.com/feed.xml"),
	]

A source takes the following arguments:

  - key: name of the feed, used on the command line and as the cache key.
  - endpoint: backend path serving pages of the feed. The page and limit
    query parameters are added to it.
  - items: name of the array holding items in the response ("items" by
    default).
  - kind: content type of items that don't declare one: post, video,
    project, job or tag-result.
  - auth: whether the feed requires a token. Without one, it is not fetched.
  - reorder: whether a manual refresh shuffles the first page.
  - clear_on_focus: whether the persisted list is dropped every time the
    feed is opened.
  - syndication: RSS or Atom URL backing the feed instead of the backend.
  - page_size: page size of this feed.

# Observability

With -debug-addr, an HTTP server exposes Prometheus metrics on /metrics and
recent log lines on /debug/logs (as server-sent events when requested with
Accept: text/event-stream). /health reports whether the store and the NATS
connection are reachable. With -otlp-endpoint, traces are exported over
OTLP/gRPC. With -nats-url, every feed event is also published to NATS on
subjects of the form feedsync.<feed>.<event>.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/feedsync/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
