// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package backend talks to the REST backend serving feeds and engagement
// actions.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/logger"
	"go.astrophena.name/feedsync/internal/request"
)

// ErrNoToken is returned when an authenticated call is attempted without a
// token. Callers treat it as "skip", not as a failure.
var ErrNoToken = errors.New("no auth token")

// DefaultItemsKey is the response array read when a source doesn't name one.
const DefaultItemsKey = "items"

// Endpoints are the paths of engagement calls. Each path is a format string
// taking the identifier named in the field comment.
type Endpoints struct {
	Like                  string // item ID
	AddToCollection       string // collection ID
	RemoveFromCollections string // item ID
	Collections           string
}

// DefaultEndpoints are used for fields left empty in [Client.Endpoints].
var DefaultEndpoints = Endpoints{
	Like:                  "/likes/%s",
	AddToCollection:       "/collections/%s/items",
	RemoveFromCollections: "/collections/items/%s",
	Collections:           "/collections",
}

// Client is a backend client. Its fields must not change after first use.
type Client struct {
	// BaseURL is the backend root, e.g. "https://api.example.com/v1".
	BaseURL string
	// Token is the bearer token. It is scrubbed from returned errors.
	Token string
	// HTTPClient is used for requests. If nil, a client with tracing
	// instrumentation and a 10 second timeout is used.
	HTTPClient *http.Client
	// Endpoints overrides the engagement call paths.
	Endpoints Endpoints
}

var defaultHTTPClient = &http.Client{
	Timeout:   10 * time.Second,
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

func (c *Client) params(method, path string, body any) request.Params {
	p := request.Params{
		Method:     method,
		URL:        strings.TrimSuffix(c.BaseURL, "/") + path,
		Body:       body,
		HTTPClient: c.httpClient(),
	}
	// Pages and collections are only usable from a 200 with a body. Writes
	// accept any 2xx, some backends answer them with 201.
	if method == http.MethodGet {
		p.WantStatusCode = http.StatusOK
	}
	if c.Token != "" {
		p.Headers = map[string]string{"Authorization": "Bearer " + c.Token}
		p.Scrubber = strings.NewReplacer(c.Token, "[EXPUNGED]")
	}
	return p
}

func (c *Client) endpoint(path, def string) string {
	if path != "" {
		return path
	}
	return def
}

// Fetch requests one page of src. It returns [ErrNoToken] without making a
// request if src requires authentication and the client has no token.
//
// Items missing a content type get the kind of the source. Items without an
// ID can't be told apart and are skipped with a warning. The page reports more
// items when the server returned exactly size items, skipped ones included.
func (c *Client) Fetch(ctx context.Context, src feed.Source, page, size int) (feed.Page, error) {
	if src.Auth && c.Token == "" {
		return feed.Page{}, ErrNoToken
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(size))
	path := src.Endpoint
	if strings.Contains(path, "?") {
		path += "&" + q.Encode()
	} else {
		path += "?" + q.Encode()
	}

	resp, err := request.Make[map[string]json.RawMessage](ctx, c.params(http.MethodGet, path, nil))
	if err != nil {
		return feed.Page{}, err
	}

	key := src.ItemsKey
	if key == "" {
		key = DefaultItemsKey
	}
	var items []feed.Item
	if raw, ok := resp[key]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return feed.Page{}, fmt.Errorf("decoding %q of %s: %w", key, src.Endpoint, err)
		}
	}
	p := feed.NewPage(items, page, size)
	p.Items = items[:0]
	var skipped int
	for _, it := range items {
		if it.ID == "" {
			skipped++
			continue
		}
		if it.ContentType == "" {
			it.ContentType = src.Kind
		}
		p.Items = append(p.Items, it)
	}
	if skipped > 0 {
		logger.Get(ctx).Warn("skipped items without an ID", "feed", src.Key, "page", page, "skipped", skipped)
	}
	return p, nil
}

type messageResponse struct {
	Message string `json:"message"`
}

// ToggleLike likes the item if it isn't liked and unlikes it otherwise. It
// returns the server's message describing which of the two happened.
func (c *Client) ToggleLike(ctx context.Context, itemID string) (string, error) {
	if c.Token == "" {
		return "", ErrNoToken
	}
	path := fmt.Sprintf(c.endpoint(c.Endpoints.Like, DefaultEndpoints.Like), url.PathEscape(itemID))
	resp, err := request.Make[messageResponse](ctx, c.params(http.MethodPost, path, nil))
	return resp.Message, err
}

// AddItemToCollection saves an item into a collection.
func (c *Client) AddItemToCollection(ctx context.Context, collectionID, itemID string, itemType feed.ContentType) (string, error) {
	if c.Token == "" {
		return "", ErrNoToken
	}
	path := fmt.Sprintf(c.endpoint(c.Endpoints.AddToCollection, DefaultEndpoints.AddToCollection), url.PathEscape(collectionID))
	body := struct {
		ItemID   string           `json:"itemId"`
		ItemType feed.ContentType `json:"itemType"`
	}{itemID, itemType}
	resp, err := request.Make[messageResponse](ctx, c.params(http.MethodPost, path, body))
	return resp.Message, err
}

// RemoveItemFromCollections removes an item from every collection holding it.
func (c *Client) RemoveItemFromCollections(ctx context.Context, itemID string) (string, error) {
	if c.Token == "" {
		return "", ErrNoToken
	}
	path := fmt.Sprintf(c.endpoint(c.Endpoints.RemoveFromCollections, DefaultEndpoints.RemoveFromCollections), url.PathEscape(itemID))
	resp, err := request.Make[messageResponse](ctx, c.params(http.MethodDelete, path, nil))
	return resp.Message, err
}

// Collection is a named group of saved items.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (col *Collection) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string `json:"id"`
		LegacyID string `json:"_id"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	col.ID = raw.ID
	if col.ID == "" {
		col.ID = raw.LegacyID
	}
	col.Name = raw.Name
	return nil
}

// Collections lists the collections of the current user.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	if c.Token == "" {
		return nil, ErrNoToken
	}
	path := c.endpoint(c.Endpoints.Collections, DefaultEndpoints.Collections)
	resp, err := request.Make[struct {
		Collections []Collection `json:"collections"`
	}](ctx, c.params(http.MethodGet, path, nil))
	return resp.Collections, err
}
