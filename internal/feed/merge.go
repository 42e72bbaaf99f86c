// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feed

import (
	"math/rand/v2"
	"slices"
)

// Mode selects how a fetched page is combined with an existing list.
type Mode int

const (
	// Replace discards the existing list. Used for page 1 on a fresh load or
	// pull-to-refresh. Items may be shuffled if the refresh asks for it.
	Replace Mode = iota
	// Append adds the page after the existing list. Used for page 2 and later.
	Append
	// ReplaceNoReorder replaces the list with the page without shuffling it,
	// keeping the existing relative order of items the page still contains.
	// New items take the slots the server gave them. Used for page 1 on focus
	// and while restoring a scroll position, where the list must stay visually
	// stable.
	ReplaceNoReorder
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Append:
		return "append"
	case ReplaceNoReorder:
		return "replace-no-reorder"
	}
	return "unknown"
}

// Merger combines fetched pages with existing lists.
type Merger struct {
	// Shuffle permutes items in place. If nil, items are shuffled with
	// math/rand/v2.
	Shuffle func(items []Item)
}

// Merge combines page with existing using the default [Merger].
func Merge(existing []Item, page Page, mode Mode, reorder bool) []Item {
	return Merger{}.Merge(existing, page, mode, reorder)
}

// Merge combines page with existing according to mode. The reorder flag is
// only honored by [Replace].
//
// The result never contains two items with the same ID. When an ID repeats,
// the item keeps the position of its first occurrence and takes the field
// values of the last one. The returned slice never aliases existing or
// page.Items.
func (m Merger) Merge(existing []Item, page Page, mode Mode, reorder bool) []Item {
	switch mode {
	case Append:
		all := make([]Item, 0, len(existing)+len(page.Items))
		all = append(all, existing...)
		all = append(all, page.Items...)
		return Dedupe(all)
	case Replace:
		items := Dedupe(page.Items)
		if reorder {
			m.shuffle(items)
		}
		return items
	default:
		return keepOrder(existing, Dedupe(page.Items))
	}
}

// keepOrder permutes the items of page that are also in existing so they
// appear in their existing order. Items not in existing don't move.
func keepOrder(existing, page []Item) []Item {
	if len(existing) == 0 {
		return page
	}
	pos := make(map[string]int, len(existing))
	for i, it := range existing {
		if _, dup := pos[it.ID]; !dup {
			pos[it.ID] = i
		}
	}
	var (
		slots []int
		known []Item
	)
	for i, it := range page {
		if _, ok := pos[it.ID]; ok {
			slots = append(slots, i)
			known = append(known, it)
		}
	}
	slices.SortStableFunc(known, func(a, b Item) int { return pos[a.ID] - pos[b.ID] })
	for i, slot := range slots {
		page[slot] = known[i]
	}
	return page
}

func (m Merger) shuffle(items []Item) {
	if m.Shuffle != nil {
		m.Shuffle(items)
		return
	}
	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// Dedupe returns a new list without repeated IDs. The first occurrence's
// position is kept and later occurrences overwrite its fields.
func Dedupe(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := seen[it.ID]; ok {
			out[i] = it
			continue
		}
		seen[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}

// Update returns a copy of items where the item with the given ID was passed
// through fn. The second result is false if no such item exists.
func Update(items []Item, id string, fn func(*Item)) ([]Item, bool) {
	i := Index(items, id)
	if i < 0 {
		return items, false
	}
	out := make([]Item, len(items))
	copy(out, items)
	it := out[i].Clone()
	fn(&it)
	out[i] = it
	return out, true
}
