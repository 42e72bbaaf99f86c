// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package request

import (
	"log/slog"
	"net/http"
	"time"

	"go.astrophena.name/feedsync/internal/logger"
)

// LogTransport returns a [http.RoundTripper] that logs every request made
// through t at debug level: method, URL, status and duration. If t is nil,
// [http.DefaultTransport] is used.
func LogTransport(t http.RoundTripper, log *slog.Logger) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	return &logTransport{next: t, log: logger.Or(log)}
}

type logTransport struct {
	next http.RoundTripper
	log  *slog.Logger
}

func (t *logTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	attrs := []any{
		"method", r.Method,
		"url", r.URL.Redacted(),
		"duration", time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		t.log.DebugContext(r.Context(), "HTTP request failed", append(attrs, "error", err)...)
		return resp, err
	}
	t.log.DebugContext(r.Context(), "HTTP request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
