// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feed

import (
	"errors"
	"fmt"
)

// DefaultPageSize is used when neither the source nor the configuration set a
// page size.
const DefaultPageSize = 10

// Source describes one logical feed, such as the home feed, a profile or tag
// search results.
type Source struct {
	// Key names the feed. It is also the persisted cache key.
	Key string
	// Endpoint is the backend path serving pages of the feed.
	Endpoint string
	// ItemsKey is the name of the array in the response holding the items,
	// like "ugcs" or "jobs".
	ItemsKey string
	// Kind is the content type given to items that don't carry one.
	Kind ContentType
	// Auth reports whether fetching requires a token.
	Auth bool
	// Reorder allows a manual refresh to shuffle the first page.
	Reorder bool
	// ClearOnFocus drops the persisted list every time the feed regains
	// focus.
	ClearOnFocus bool
	// Syndication, if set, is an RSS or Atom URL backing the feed instead of
	// the backend.
	Syndication string
	// PageSize overrides the configured page size.
	PageSize int
}

// Validate reports whether the source can be fetched.
func (s Source) Validate() error {
	if s.Key == "" {
		return errors.New("feed source has no key")
	}
	if s.Endpoint == "" && s.Syndication == "" {
		return fmt.Errorf("feed source %q: either endpoint or syndication must be set", s.Key)
	}
	if s.Endpoint != "" && s.Syndication != "" {
		return fmt.Errorf("feed source %q: endpoint and syndication are mutually exclusive", s.Key)
	}
	if s.Kind != "" && !s.Kind.Valid() {
		return fmt.Errorf("feed source %q: unknown kind %q", s.Key, s.Kind)
	}
	if s.PageSize < 0 {
		return fmt.Errorf("feed source %q: negative page size", s.Key)
	}
	return nil
}

// Size returns the page size to request, falling back to def and then to
// [DefaultPageSize].
func (s Source) Size(def int) int {
	switch {
	case s.PageSize > 0:
		return s.PageSize
	case def > 0:
		return def
	}
	return DefaultPageSize
}
