// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads the feedsync configuration, a Starlark file usually
// named config.star.
//
// The file may set the following globals:
//
//	backend = "https://api.example.com"  # base URL of the backend
//	page_size = 10                       # default page size
//	detail_screens = ["PostDetail"]      # routes that restore scroll position
//	feeds = [
//	    source(key = "home", endpoint = "/ugc/feed", items = "ugcs", reorder = True),
//	    source(key = "blog", syndication = "https://example.com/feed.xml"),
//	]
//
// Only feeds is required.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/logger"
)

// Config is a parsed configuration file.
type Config struct {
	Backend       string
	PageSize      int
	DetailScreens []string
	Feeds         []feed.Source
}

// Feed returns the feed source named key.
func (c *Config) Feed(key string) (feed.Source, bool) {
	for _, src := range c.Feeds {
		if src.Key == key {
			return src, true
		}
	}
	return feed.Source{}, false
}

// Load reads and parses the configuration file at path.
func Load(path string, log *slog.Logger) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b, log)
}

// Parse parses the configuration in src. The filename is used in error
// messages. Output of print calls goes to log.
func Parse(filename string, src []byte, log *slog.Logger) (*Config, error) {
	log = logger.Or(log)
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Name:  filename,
			Print: func(_ *starlark.Thread, msg string) { log.Info(msg, "file", filename) },
		},
		filename,
		src,
		starlark.StringDict{
			"source": starlark.NewBuiltin("source", sourceBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	c := new(Config)
	if v, ok := globals["backend"]; ok {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("backend must be a string, got %s", v.Type())
		}
		c.Backend = s
	}
	if v, ok := globals["page_size"]; ok {
		if err := starlark.AsInt(v, &c.PageSize); err != nil {
			return nil, fmt.Errorf("page_size: %w", err)
		}
		if c.PageSize < 1 {
			return nil, fmt.Errorf("page_size must be positive, got %d", c.PageSize)
		}
	}
	if v, ok := globals["detail_screens"]; ok {
		l, ok := v.(*starlark.List)
		if !ok {
			return nil, fmt.Errorf("detail_screens must be a list, got %s", v.Type())
		}
		for i := range l.Len() {
			s, ok := starlark.AsString(l.Index(i))
			if !ok {
				return nil, fmt.Errorf("detail_screens[%d] must be a string", i)
			}
			c.DetailScreens = append(c.DetailScreens, s)
		}
	}

	feeds, ok := globals["feeds"].(*starlark.List)
	if !ok {
		return nil, errors.New("feeds must be defined and be a list")
	}
	seen := make(map[string]bool)
	for i := range feeds.Len() {
		s, ok := feeds.Index(i).(*source)
		if !ok {
			return nil, fmt.Errorf("feeds[%d] is a %s, not a source", i, feeds.Index(i).Type())
		}
		if err := s.src.Validate(); err != nil {
			return nil, err
		}
		if seen[s.src.Key] {
			return nil, fmt.Errorf("duplicate feed %q", s.src.Key)
		}
		seen[s.src.Key] = true
		c.Feeds = append(c.Feeds, s.src)
	}

	return c, nil
}

type source struct{ src feed.Source }

func (s *source) String() string        { return fmt.Sprintf("<source key=%q>", s.src.Key) }
func (s *source) Type() string          { return "source" }
func (s *source) Freeze()               {} // immutable
func (s *source) Truth() starlark.Bool  { return starlark.Bool(s.src.Key != "") }
func (s *source) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", s.Type()) }

func sourceBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("source: unexpected positional arguments")
	}
	var (
		s    = new(source)
		kind string
	)
	if err := starlark.UnpackArgs("source", args, kwargs,
		"key", &s.src.Key,
		"endpoint?", &s.src.Endpoint,
		"items?", &s.src.ItemsKey,
		"kind?", &kind,
		"auth?", &s.src.Auth,
		"reorder?", &s.src.Reorder,
		"clear_on_focus?", &s.src.ClearOnFocus,
		"syndication?", &s.src.Syndication,
		"page_size?", &s.src.PageSize,
	); err != nil {
		return nil, err
	}
	s.src.Kind = feed.ContentType(kind)
	return s, nil
}
