// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/feedsync/internal/testutil"
)

func send(t *testing.T, h http.Handler, method, path string, wantStatus int) []byte {
	t.Helper()
	req := httptest.NewRequestWithContext(t.Context(), method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("want response code %d, got %d", wantStatus, rec.Code)
	}
	testutil.AssertEqual(t, rec.Header().Get("Content-Type"), "application/json")
	return rec.Body.Bytes()
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	ok := func(status string) HealthFunc {
		return func(context.Context) (string, bool) { return status, true }
	}
	fail := func(status string) HealthFunc {
		return func(context.Context) (string, bool) { return status, false }
	}

	cases := map[string]struct {
		checks     map[string]HealthFunc
		want       HealthResponse
		wantStatus int
	}{
		"no checks": {
			want:       HealthResponse{OK: true, Checks: map[string]CheckResponse{}},
			wantStatus: http.StatusOK,
		},
		"all ok": {
			checks: map[string]HealthFunc{"store": ok("reachable"), "nats": ok("CONNECTED")},
			want: HealthResponse{OK: true, Checks: map[string]CheckResponse{
				"store": {Status: "reachable", OK: true},
				"nats":  {Status: "CONNECTED", OK: true},
			}},
			wantStatus: http.StatusOK,
		},
		"one failing": {
			checks: map[string]HealthFunc{"store": ok("reachable"), "nats": fail("CLOSED")},
			want: HealthResponse{OK: false, Checks: map[string]CheckResponse{
				"store": {Status: "reachable", OK: true},
				"nats":  {Status: "CLOSED", OK: false},
			}},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := NewHealthHandler()
			for name, f := range tc.checks {
				h.RegisterFunc(name, f)
			}
			body := send(t, h, http.MethodGet, "/health", tc.wantStatus)
			testutil.AssertEqual(t, testutil.UnmarshalJSON[HealthResponse](t, body), tc.want)
		})
	}
}

func TestHealthCheckDeadline(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler()
	h.RegisterFunc("deadline", func(ctx context.Context) (string, bool) {
		_, ok := ctx.Deadline()
		return "", ok
	})
	send(t, h, http.MethodGet, "/health", http.StatusOK)
}

func TestHealthMethodNotAllowed(t *testing.T) {
	t.Parallel()

	body := send(t, NewHealthHandler(), http.MethodPost, "/health", http.StatusMethodNotAllowed)
	testutil.AssertEqual(t, testutil.UnmarshalJSON[errorResponse](t, body), errorResponse{
		Status: "error",
		Error:  "method not allowed",
	})
}

func TestRegisterDuplicatePanics(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler()
	h.RegisterFunc("store", func(context.Context) (string, bool) { return "", true })
	defer func() {
		if recover() == nil {
			t.Fatal("want panic on duplicate check")
		}
	}()
	h.RegisterFunc("store", func(context.Context) (string, bool) { return "", true })
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	t.Run("marshal error", func(t *testing.T) {
		t.Parallel()
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, http.StatusOK, math.Inf(1))
		})
		body := send(t, h, http.MethodGet, "/", http.StatusInternalServerError)
		got := testutil.UnmarshalJSON[errorResponse](t, body)
		testutil.AssertEqual(t, got.Status, "error")
	})

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			RespondJSONError(w, errors.New("boom"))
		})
		body := send(t, h, http.MethodGet, "/", http.StatusInternalServerError)
		testutil.AssertEqual(t, testutil.UnmarshalJSON[errorResponse](t, body), errorResponse{
			Status: "error",
			Error:  "boom",
		})
	})

	t.Run("status error", func(t *testing.T) {
		t.Parallel()
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			RespondJSONError(w, ErrNotFound)
		})
		body := send(t, h, http.MethodGet, "/", http.StatusNotFound)
		testutil.AssertEqual(t, testutil.UnmarshalJSON[errorResponse](t, body).Error, "not found")
	})
}
