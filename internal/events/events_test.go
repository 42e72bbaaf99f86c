// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package events

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/testutil"
)

func TestBus(t *testing.T) {
	t.Parallel()

	var b Bus
	a, unsubA := b.Subscribe()
	c, unsubC := b.Subscribe()
	defer unsubC()

	want := Event{Kind: ScrollTo, FeedKey: "home", Offset: 812.5}
	b.Publish(want)

	testutil.AssertEqual(t, <-a, want)
	testutil.AssertEqual(t, <-c, want)

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel must be closed after unsubscribing")
	}

	// Publishing after unsubscribing reaches only the remaining subscriber.
	b.Publish(Event{Kind: RefreshState, FeedKey: "home", Refreshing: true})
	testutil.AssertEqual(t, (<-c).Refreshing, true)
}

func TestBusNeverBlocks(t *testing.T) {
	t.Parallel()

	var b Bus
	slow, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := range DefaultBuffer * 2 {
			b.Publish(Event{Kind: ScrollActivity, Offset: float64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	testutil.AssertEqual(t, len(slow), DefaultBuffer)
	testutil.AssertEqual(t, (<-slow).Offset, 0.0)
}

func TestSubject(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, Subject("", Event{Kind: ItemsChanged, FeedKey: "home"}), "feedsync.home.items")
	testutil.AssertEqual(t, Subject("app", Event{Kind: ScrollTo, FeedKey: "tag.search go"}), "app.tag_search_go.scroll-to")
	testutil.AssertEqual(t, Subject("", Event{Kind: StatusChanged}), "feedsync._.status")
}

func TestEventJSON(t *testing.T) {
	t.Parallel()

	e := Event{
		Kind:    ItemsChanged,
		FeedKey: "home",
		Items:   []feed.Item{{ID: "1", ContentType: feed.Post}},
		Page:    1,
		HasMore: true,
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, testutil.UnmarshalJSON[Event](t, b), e)
}

func TestNATSBridge(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL is not set")
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("feedsync.home.>")
	if err != nil {
		t.Fatal(err)
	}

	var bus Bus
	(&NATSBridge{Conn: nc}).Forward(t.Context(), &bus)
	bus.Publish(Event{Kind: ScrollTo, FeedKey: "home", Offset: 42})

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, msg.Subject, "feedsync.home.scroll-to")
	got := testutil.UnmarshalJSON[Event](t, msg.Data)
	testutil.AssertEqual(t, got.Offset, 42.0)
}
