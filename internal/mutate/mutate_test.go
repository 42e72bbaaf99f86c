// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package mutate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"go.astrophena.name/feedsync/internal/backend"
	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/testutil"
)

// listTarget is a Target over a plain slice that records every state it
// persists.
type listTarget struct {
	mu        sync.Mutex
	items     []feed.Item
	persisted [][]feed.Item
}

func (l *listTarget) Item(id string) (feed.Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := feed.Index(l.items, id)
	if i < 0 {
		return feed.Item{}, false
	}
	return l.items[i], true
}

func (l *listTarget) Apply(_ context.Context, id string, fn func(*feed.Item)) (feed.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, ok := feed.Update(l.items, id, fn)
	if !ok {
		return feed.Item{}, ErrNotFound
	}
	l.items = items
	l.persisted = append(l.persisted, items)
	return items[feed.Index(items, id)], nil
}

type fakeAPI struct {
	likeMsg   string
	likeErr   error
	addMsg    string
	removeMsg string
	cols      []backend.Collection

	mu    sync.Mutex
	calls []string
	// during is called while a network call is in flight.
	during func()
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.during != nil {
		f.during()
	}
}

func (f *fakeAPI) ToggleLike(_ context.Context, id string) (string, error) {
	f.record("like " + id)
	return f.likeMsg, f.likeErr
}

func (f *fakeAPI) AddItemToCollection(_ context.Context, col, id string, typ feed.ContentType) (string, error) {
	f.record("add " + col + " " + id + " " + string(typ))
	return f.addMsg, nil
}

func (f *fakeAPI) RemoveItemFromCollections(_ context.Context, id string) (string, error) {
	f.record("remove " + id)
	return f.removeMsg, nil
}

func (f *fakeAPI) Collections(context.Context) ([]backend.Collection, error) {
	f.record("collections")
	return f.cols, nil
}

func newTarget() *listTarget {
	return &listTarget{items: []feed.Item{
		{ID: "x", ContentType: feed.Video, LikeCount: 5, SavedCount: 1},
		{ID: "y", ContentType: feed.Post, IsLiked: true, LikeCount: 1, IsSaved: true, SavedCount: 1},
	}}
}

func TestToggleLikeConfirmed(t *testing.T) {
	t.Parallel()

	target := newTarget()
	api := &fakeAPI{likeMsg: "Someone liked your post."}
	var settled []Result
	m := &Mutator{API: api, Target: target, OnSettled: func(r Result) { settled = append(settled, r) }}

	// The local flip is visible while the call is in flight.
	api.during = func() {
		it, _ := target.Item("x")
		if !it.IsLiked || it.LikeCount != 6 {
			t.Errorf("pending state not applied: %+v", it)
		}
	}

	res, err := m.ToggleLike(t.Context(), "x")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, res.Kind, Like)
	testutil.AssertEqual(t, res.State, Confirmed)
	testutil.AssertEqual(t, res.Item.IsLiked, true)
	testutil.AssertEqual(t, res.Item.LikeCount, 6)
	if res.ID == "" {
		t.Error("mutation ID is empty")
	}

	it, _ := target.Item("x")
	testutil.AssertEqual(t, it.LikeCount, 6)
	// Only the optimistic write, no second write from server data.
	testutil.AssertEqual(t, len(target.persisted), 1)
	testutil.AssertEqual(t, len(settled), 1)
}

func TestToggleLikeRollback(t *testing.T) {
	t.Parallel()

	for name, api := range map[string]*fakeAPI{
		"network error":      {likeErr: errors.New("connection reset")},
		"unexpected message": {likeMsg: "Something went wrong"},
		"opposite message":   {likeMsg: "You unliked the post."},
	} {
		t.Run(name, func(t *testing.T) {
			target := newTarget()
			m := &Mutator{API: api, Target: target}

			res, err := m.ToggleLike(t.Context(), "x")
			var merr *MutationError
			if !errors.As(err, &merr) {
				t.Fatalf("want MutationError, got %v", err)
			}
			testutil.AssertEqual(t, merr.Kind, Like)
			testutil.AssertEqual(t, res.State, Reverted)

			it, _ := target.Item("x")
			testutil.AssertEqual(t, it.IsLiked, false)
			testutil.AssertEqual(t, it.LikeCount, 5)
			// Pending write, then the reverted write.
			testutil.AssertEqual(t, len(target.persisted), 2)
			testutil.AssertEqual(t, target.persisted[1][0], newTarget().items[0])
		})
	}
}

func TestToggleUnlike(t *testing.T) {
	t.Parallel()

	target := newTarget()
	m := &Mutator{API: &fakeAPI{likeMsg: "You unliked the post."}, Target: target}
	res, err := m.ToggleLike(t.Context(), "y")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, res.Kind, Unlike)
	testutil.AssertEqual(t, res.Item.IsLiked, false)
	testutil.AssertEqual(t, res.Item.LikeCount, 0)

	// Counts never go negative.
	target.items[1].IsLiked, target.items[1].LikeCount = true, 0
	res, err = m.ToggleLike(t.Context(), "y")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, res.Item.LikeCount, 0)
}

func TestToggleLikeMissingItem(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{likeMsg: LikedMessage}
	m := &Mutator{API: api, Target: newTarget()}
	if _, err := m.ToggleLike(t.Context(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	testutil.AssertEqual(t, len(api.calls), 0)
}

func TestToggleSave(t *testing.T) {
	t.Parallel()

	target := newTarget()
	api := &fakeAPI{
		addMsg:    SavedMessage,
		removeMsg: UnsavedMessage,
		cols:      []backend.Collection{{ID: "c1", Name: "Ideas"}, {ID: "c2", Name: "Jobs"}},
	}
	m := &Mutator{API: api, Target: target, Metrics: NewMetrics(prometheus.NewRegistry())}

	var offered []backend.Collection
	pick := func(_ context.Context, cols []backend.Collection) (string, bool, error) {
		offered = cols
		return cols[1].ID, true, nil
	}

	res, err := m.ToggleSave(t.Context(), "x", pick)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, res.Kind, Save)
	testutil.AssertEqual(t, res.Item.IsSaved, true)
	testutil.AssertEqual(t, res.Item.SavedCount, 2)
	testutil.AssertEqual(t, offered, api.cols)

	res, err = m.ToggleSave(t.Context(), "x", pick)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, res.Kind, Unsave)
	testutil.AssertEqual(t, res.Item.SavedCount, 1)

	testutil.AssertEqual(t, api.calls, []string{"collections", "add c2 x video", "remove x"})
}

func TestToggleSaveCanceled(t *testing.T) {
	t.Parallel()

	target := newTarget()
	api := &fakeAPI{addMsg: SavedMessage}
	m := &Mutator{API: api, Target: target}

	_, err := m.ToggleSave(t.Context(), "x", func(context.Context, []backend.Collection) (string, bool, error) {
		return "", false, nil
	})
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("want ErrCanceled, got %v", err)
	}
	testutil.AssertEqual(t, len(target.persisted), 0)
	testutil.AssertEqual(t, api.calls, []string{"collections"})
}

func TestToggleSaveRollback(t *testing.T) {
	t.Parallel()

	target := newTarget()
	m := &Mutator{API: &fakeAPI{removeMsg: "Collection not found"}, Target: target}

	_, err := m.ToggleSave(t.Context(), "y", nil)
	var merr *MutationError
	if !errors.As(err, &merr) {
		t.Fatalf("want MutationError, got %v", err)
	}
	testutil.AssertEqual(t, merr.Kind, Unsave)
	testutil.AssertEqual(t, merr.Message, "Collection not found")

	it, _ := target.Item("y")
	testutil.AssertEqual(t, it.IsSaved, true)
	testutil.AssertEqual(t, it.SavedCount, 1)
}

func TestRevertKeepsOtherFields(t *testing.T) {
	t.Parallel()

	target := newTarget()
	api := &fakeAPI{likeErr: errors.New("timeout")}
	// A save lands while the like is in flight.
	api.during = func() {
		target.Apply(context.Background(), "x", func(it *feed.Item) {
			it.IsSaved, it.SavedCount = true, 2
		})
	}
	m := &Mutator{API: api, Target: target}
	if _, err := m.ToggleLike(t.Context(), "x"); err == nil {
		t.Fatal("want error")
	}

	it, _ := target.Item("x")
	testutil.AssertEqual(t, it.IsLiked, false)
	testutil.AssertEqual(t, it.LikeCount, 5)
	testutil.AssertEqual(t, it.IsSaved, true)
	testutil.AssertEqual(t, it.SavedCount, 2)
}
