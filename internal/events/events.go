// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package events delivers feed state changes to whoever renders them.
package events

import (
	"sync"

	"go.astrophena.name/feedsync/internal/feed"
)

// Kind identifies an event.
type Kind string

// Event kinds.
const (
	// ItemsChanged carries the full list after a merge or mutation.
	ItemsChanged Kind = "items"
	// StatusChanged carries the new controller status and the last error.
	StatusChanged Kind = "status"
	// ScrollTo asks the view to scroll to Offset.
	ScrollTo Kind = "scroll-to"
	// ScrollActivity reports that the user scrolled the feed to Offset.
	ScrollActivity Kind = "scroll"
	// RefreshState reports whether a pull-to-refresh is in progress.
	RefreshState Kind = "refresh"
	// MutationSettled reports a confirmed or reverted mutation.
	MutationSettled Kind = "mutation"
)

// Event is a single state change of a feed.
type Event struct {
	Kind       Kind        `json:"kind"`
	FeedKey    string      `json:"feed"`
	Status     string      `json:"status,omitempty"`
	Err        string      `json:"error,omitempty"`
	Items      []feed.Item `json:"items,omitempty"`
	Page       int         `json:"page,omitempty"`
	HasMore    bool        `json:"has_more,omitempty"`
	Offset     float64     `json:"offset,omitempty"`
	Animated   bool        `json:"animated,omitempty"`
	Refreshing bool        `json:"refreshing,omitempty"`
	Mutation   *Mutation   `json:"mutation,omitempty"`
}

// Mutation describes a settled mutation.
type Mutation struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	State  string `json:"state"`
	ItemID string `json:"item"`
}

// DefaultBuffer is the number of events a subscriber may fall behind by
// before it starts missing events.
const DefaultBuffer = 64

// Bus fans events out to subscribers. The zero value is ready to use.
//
// Publishing never blocks. A subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// Subscribe returns a channel receiving every published event and a function
// that unsubscribes and closes the channel. It is safe to call the function
// more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[chan Event]struct{})
	}
	ch := make(chan Event, DefaultBuffer)
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, ch)
			close(ch)
		})
	}
}

// Publish sends e to all subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
