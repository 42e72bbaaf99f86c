// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feed defines feed items, pages and the rules for merging a fetched
// page into an existing list.
package feed

import (
	"encoding/json"
	"fmt"
	"maps"
)

// ContentType is the kind of record a feed item represents.
type ContentType string

// Known content types.
const (
	Post      ContentType = "post"
	Video     ContentType = "video"
	Project   ContentType = "project"
	Job       ContentType = "job"
	TagResult ContentType = "tag-result"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case Post, Video, Project, Job, TagResult:
		return true
	}
	return false
}

// Item is a single post, project or job record.
//
// Only the identity and engagement fields are interpreted. Everything else the
// backend sends (caption, media URLs, poster info) is kept in Raw and written
// back unchanged.
type Item struct {
	ID          string
	ContentType ContentType
	IsLiked     bool
	LikeCount   int
	IsSaved     bool
	SavedCount  int
	Raw         map[string]any
}

// JSON keys of the promoted fields.
const (
	keyID          = "id"
	keyLegacyID    = "_id"
	keyContentType = "contentType"
	keyIsLiked     = "isLiked"
	keyLikeCount   = "likeCount"
	keyIsSaved     = "isSaved"
	keySavedCount  = "savedCount"
)

var promoted = []string{keyID, keyContentType, keyIsLiked, keyLikeCount, keyIsSaved, keySavedCount}

// Clone returns a copy of the item whose Raw map can be modified
// independently. Values inside Raw are shared.
func (it Item) Clone() Item {
	if it.Raw != nil {
		it.Raw = maps.Clone(it.Raw)
	}
	return it
}

// MarshalJSON implements [json.Marshaler]. Raw fields come first and promoted
// fields override them.
func (it Item) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(it.Raw)+len(promoted))
	maps.Copy(m, it.Raw)
	m[keyID] = it.ID
	if it.ContentType != "" {
		m[keyContentType] = it.ContentType
	}
	m[keyIsLiked] = it.IsLiked
	m[keyLikeCount] = it.LikeCount
	m[keyIsSaved] = it.IsSaved
	m[keySavedCount] = it.SavedCount
	return json.Marshal(m)
}

// UnmarshalJSON implements [json.Unmarshaler]. The item ID is read from "id",
// falling back to "_id".
func (it *Item) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	var out Item
	decode := func(key string, v any) error {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		return nil
	}

	idKey := keyID
	if raw, ok := fields[keyID]; !ok || string(raw) == "null" {
		idKey = keyLegacyID
	}
	if raw, ok := fields[idKey]; ok && string(raw) != "null" {
		id, err := parseID(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", idKey, err)
		}
		out.ID = id
	}

	if err := decode(keyContentType, &out.ContentType); err != nil {
		return err
	}
	if err := decode(keyIsLiked, &out.IsLiked); err != nil {
		return err
	}
	if err := decode(keyLikeCount, &out.LikeCount); err != nil {
		return err
	}
	if err := decode(keyIsSaved, &out.IsSaved); err != nil {
		return err
	}
	if err := decode(keySavedCount, &out.SavedCount); err != nil {
		return err
	}

	for _, k := range promoted {
		delete(fields, k)
	}
	if len(fields) > 0 {
		out.Raw = make(map[string]any, len(fields))
		for k, raw := range fields {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("field %q: %w", k, err)
			}
			out.Raw[k] = v
		}
	}

	*it = out
	return nil
}

// parseID accepts both string and numeric identifiers. Numbers are kept in
// their literal form.
func parseID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("want string or number, got %s", raw)
	}
	return n.String(), nil
}

// Page is one page of items returned by a fetch.
type Page struct {
	Items   []Item
	Number  int
	HasMore bool
}

// NewPage builds a page for the given page number.
//
// HasMore is true when the page came back exactly full. This cannot tell a
// full last page from a page with more behind it, so the end of a feed costs
// one extra fetch that returns nothing.
func NewPage(items []Item, number, pageSize int) Page {
	return Page{
		Items:   items,
		Number:  number,
		HasMore: pageSize > 0 && len(items) == pageSize,
	}
}

// Index returns the position of the item with the given ID, or -1.
func Index(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
