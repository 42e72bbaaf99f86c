// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package request_test

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.astrophena.name/feedsync/internal/request"
	"go.astrophena.name/feedsync/internal/testutil"
)

type message struct {
	Message string `json:"message"`
}

func TestMake(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/likes/1":
			if r.Method != http.MethodPost {
				http.Error(w, "invalid method", http.StatusMethodNotAllowed)
				return
			}
			if r.Header.Get("Authorization") != "Bearer secret" {
				http.Error(w, "unauthorized: secret", http.StatusUnauthorized)
				return
			}
			if !strings.HasPrefix(r.Header.Get("User-Agent"), "feedsync/") {
				http.Error(w, "bad user agent", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"message": "liked your post."}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/garbage":
			w.Write([]byte(`{"message":`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	auth := map[string]string{"Authorization": "Bearer secret"}

	cases := map[string]struct {
		params     request.Params
		want       message
		wantStatus int
		wantErr    bool
	}{
		"successful request": {
			params: request.Params{
				Method:  http.MethodPost,
				URL:     ts.URL + "/likes/1",
				Headers: auth,
			},
			want: message{Message: "liked your post."},
		},
		"custom HTTP client": {
			params: request.Params{
				Method:     http.MethodPost,
				URL:        ts.URL + "/likes/1",
				Headers:    auth,
				HTTPClient: &http.Client{},
			},
			want: message{Message: "liked your post."},
		},
		"empty body": {
			params: request.Params{Method: http.MethodDelete, URL: ts.URL + "/empty"},
		},
		"exact status mismatch": {
			params: request.Params{
				Method:         http.MethodPost,
				URL:            ts.URL + "/likes/1",
				Headers:        auth,
				WantStatusCode: http.StatusOK,
			},
			wantStatus: http.StatusCreated,
			wantErr:    true,
		},
		"not found": {
			params:     request.Params{Method: http.MethodGet, URL: ts.URL + "/missing"},
			wantStatus: http.StatusNotFound,
			wantErr:    true,
		},
		"unauthorized": {
			params:     request.Params{Method: http.MethodPost, URL: ts.URL + "/likes/1"},
			wantStatus: http.StatusUnauthorized,
			wantErr:    true,
		},
		"invalid JSON response": {
			params:  request.Params{Method: http.MethodGet, URL: ts.URL + "/garbage"},
			wantErr: true,
		},
		"invalid value for JSON": {
			params: request.Params{
				Method: http.MethodPost,
				URL:    ts.URL + "/likes/1",
				Body:   make(chan int),
			},
			wantErr: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := request.Make[message](t.Context(), tc.params)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Make() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantStatus != 0 {
				var se *request.StatusError
				if !errors.As(err, &se) {
					t.Fatalf("want *StatusError, got %T", err)
				}
				testutil.AssertEqual(t, se.StatusCode, tc.wantStatus)
			}
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}

func TestMakeScrubs(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token "+r.Header.Get("Authorization"), http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := request.Make[message](t.Context(), request.Params{
		Method:   http.MethodGet,
		URL:      ts.URL,
		Headers:  map[string]string{"Authorization": "Bearer hunter2"},
		Scrubber: strings.NewReplacer("hunter2", "[EXPUNGED]"),
	})
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("token leaked into error: %v", err)
	}
	testutil.AssertEqual(t, strings.Contains(err.Error(), "[EXPUNGED]"), true)
}

func TestLogTransport(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer ts.Close()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := &http.Client{Transport: request.LogTransport(ts.Client().Transport, log)}

	resp, err := c.Get(ts.URL + "/ugc/feed?page=2")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	testutil.AssertEqual(t, resp.StatusCode, http.StatusTeapot)

	out := buf.String()
	for _, want := range []string{"method=GET", "/ugc/feed?page=2", "status=418"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q must contain %q", out, want)
		}
	}

	buf.Reset()
	if _, err := c.Get("http://127.0.0.1:0/"); err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(buf.String(), "HTTP request failed") {
		t.Errorf("failure not logged: %q", buf.String())
	}
}
