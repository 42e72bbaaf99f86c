// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package syndication serves RSS and Atom feeds as paged feed sources.
package syndication

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/logger"
	"go.astrophena.name/feedsync/internal/version"
)

// Fetcher downloads syndication feeds and slices them into pages. Each URL is
// downloaded again only when the server reports a change.
type Fetcher struct {
	// HTTPClient is used for requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger receives debug messages and warnings. If nil, nothing is logged.
	Logger *slog.Logger

	fp    *gofeed.Parser
	once  sync.Once
	mu    sync.Mutex
	state map[string]*urlState
}

type urlState struct {
	etag         string
	lastModified string
	items        []feed.Item
}

func (f *Fetcher) init() {
	f.once.Do(func() {
		f.fp = gofeed.NewParser()
		f.state = make(map[string]*urlState)
		f.Logger = logger.Or(f.Logger)
	})
}

// Fetch returns page number page of src.Syndication with size items per
// page.
func (f *Fetcher) Fetch(ctx context.Context, src feed.Source, page, size int) (feed.Page, error) {
	f.init()

	items, err := f.items(ctx, src)
	if err != nil {
		return feed.Page{}, err
	}

	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))
	out := make([]feed.Item, end-start)
	for i, it := range items[start:end] {
		out[i] = it.Clone()
	}
	return feed.NewPage(out, page, size), nil
}

func (f *Fetcher) items(ctx context.Context, src feed.Source) ([]feed.Item, error) {
	f.mu.Lock()
	st, ok := f.state[src.Syndication]
	if !ok {
		st = &urlState{}
		f.state[src.Syndication] = st
	}
	etag, lastModified := st.etag, st.lastModified
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Syndication, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	httpc := f.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	f.Logger.Debug("fetched syndication feed", "feed", src.Key, "url", src.Syndication, "status", res.StatusCode)

	if res.StatusCode == http.StatusNotModified {
		f.mu.Lock()
		defer f.mu.Unlock()
		return st.items, nil
	}
	if res.StatusCode != http.StatusOK {
		const readLimit = 16384
		body, _ := io.ReadAll(io.LimitReader(res.Body, readLimit))
		return nil, fmt.Errorf("%s: want 200, got %d: %s", src.Syndication, res.StatusCode, body)
	}

	parsed, err := f.fp.Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Syndication, err)
	}

	items := make([]feed.Item, 0, len(parsed.Items))
	for _, pi := range parsed.Items {
		it := convert(pi, src.Kind)
		if it.ID == "" {
			f.Logger.Warn("skipped entry without a GUID or link", "feed", src.Key, "title", pi.Title)
			continue
		}
		items = append(items, it)
	}
	items = feed.Dedupe(items)

	f.mu.Lock()
	defer f.mu.Unlock()
	st.etag = res.Header.Get("ETag")
	if lm := res.Header.Get("Last-Modified"); lm != "" {
		st.lastModified = lm
	}
	st.items = items
	return items, nil
}

func convert(pi *gofeed.Item, kind feed.ContentType) feed.Item {
	if kind == "" {
		kind = feed.Post
	}
	it := feed.Item{
		ID:          pi.GUID,
		ContentType: kind,
		Raw:         map[string]any{},
	}
	if it.ID == "" {
		it.ID = pi.Link
	}
	set := func(k, v string) {
		if v != "" {
			it.Raw[k] = v
		}
	}
	set("title", pi.Title)
	set("link", pi.Link)
	set("description", pi.Description)
	if pi.PublishedParsed != nil {
		set("published", pi.PublishedParsed.UTC().Format(time.RFC3339))
	}
	if pi.Image != nil {
		set("image", pi.Image.URL)
	}
	if len(pi.Authors) > 0 && pi.Authors[0] != nil {
		set("author", pi.Authors[0].Name)
	}
	return it
}
