// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feed

import (
	"encoding/json"
	"testing"

	"go.astrophena.name/feedsync/internal/testutil"
)

func TestItemJSON(t *testing.T) {
	t.Parallel()

	const in = `{
		"_id": "64f0c",
		"contentType": "video",
		"isLiked": true,
		"likeCount": 5,
		"savedCount": 2,
		"caption": "hello",
		"media": {"url": "https://example.com/a.mp4"}
	}`

	it := testutil.UnmarshalJSON[Item](t, []byte(in))
	testutil.AssertEqual(t, it, Item{
		ID:          "64f0c",
		ContentType: Video,
		IsLiked:     true,
		LikeCount:   5,
		SavedCount:  2,
		Raw: map[string]any{
			"_id":     "64f0c",
			"caption": "hello",
			"media":   map[string]any{"url": "https://example.com/a.mp4"},
		},
	})

	b, err := json.Marshal(it)
	if err != nil {
		t.Fatal(err)
	}
	back := testutil.UnmarshalJSON[Item](t, b)
	testutil.AssertEqual(t, back, it)
}

func TestItemJSONNumericID(t *testing.T) {
	t.Parallel()

	it := testutil.UnmarshalJSON[Item](t, []byte(`{"id": 12345678901}`))
	testutil.AssertEqual(t, it.ID, "12345678901")
	testutil.AssertEqual(t, it.Raw == nil, true)
}

func TestItemJSONPrefersID(t *testing.T) {
	t.Parallel()

	it := testutil.UnmarshalJSON[Item](t, []byte(`{"id": "a", "_id": "b"}`))
	testutil.AssertEqual(t, it.ID, "a")
	testutil.AssertEqual(t, it.Raw, map[string]any{"_id": "b"})
}

func TestItemJSONErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		`[]`,
		`{"id": true}`,
		`{"id": "a", "likeCount": "many"}`,
	} {
		var it Item
		if err := json.Unmarshal([]byte(in), &it); err == nil {
			t.Errorf("%s: want error", in)
		}
	}
}

func TestSourceValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		src     Source
		wantErr bool
	}{
		"endpoint":      {src: Source{Key: "home", Endpoint: "/ugc/feed"}},
		"syndication":   {src: Source{Key: "blog", Syndication: "https://example.com/feed.xml"}},
		"no key":        {src: Source{Endpoint: "/x"}, wantErr: true},
		"no target":     {src: Source{Key: "home"}, wantErr: true},
		"both targets":  {src: Source{Key: "home", Endpoint: "/x", Syndication: "https://x"}, wantErr: true},
		"bad kind":      {src: Source{Key: "home", Endpoint: "/x", Kind: "reel"}, wantErr: true},
		"negative size": {src: Source{Key: "home", Endpoint: "/x", PageSize: -1}, wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.src.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}

	testutil.AssertEqual(t, Source{PageSize: 5}.Size(20), 5)
	testutil.AssertEqual(t, Source{}.Size(20), 20)
	testutil.AssertEqual(t, Source{}.Size(0), DefaultPageSize)
}
