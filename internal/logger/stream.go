// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"container/ring"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Streamer is an [io.Writer] that remembers the last lines written to it and
// fans new lines out to subscribers. It also serves them over HTTP, as plain
// text or as server-sent events.
type Streamer struct {
	mu      sync.Mutex
	size    int
	partial string
	r       *ring.Ring
	subs    map[chan string]struct{}
}

// NewStreamer returns a Streamer that keeps the last size lines.
func NewStreamer(size int) *Streamer {
	return &Streamer{
		size: size,
		r:    ring.New(size),
		subs: make(map[chan string]struct{}),
	}
}

// Write implements [io.Writer]. Incomplete lines are held until their newline
// arrives.
func (s *Streamer) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.partial + string(b)
	for {
		line, rest, ok := strings.Cut(text, "\n")
		if !ok {
			break
		}
		line += "\n"
		s.r.Value = line
		s.r = s.r.Next()
		for sub := range s.subs {
			// Slow subscribers miss lines.
			select {
			case sub <- line:
			default:
			}
		}
		text = rest
	}
	s.partial = text
	return len(b), nil
}

// Lines returns the remembered lines, oldest first.
func (s *Streamer) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, s.size)
	s.r.Do(func(v any) {
		if v != nil {
			lines = append(lines, v.(string))
		}
	})
	return lines
}

// Subscribe returns a channel receiving every new line and a function that
// unsubscribes and closes the channel.
func (s *Streamer) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := make(chan string, s.size+1)
	s.subs[sub] = struct{}{}

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, sub)
			close(sub)
		})
	}
}

// ServeHTTP streams new lines until the client goes away.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	sse := strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	flush()

	lines, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for {
		select {
		case line := <-lines:
			if sse {
				fmt.Fprintf(w, "event: logline\ndata: %s\n", line)
			} else {
				fmt.Fprint(w, line)
			}
			flush()
		case <-r.Context().Done():
			return
		}
	}
}
