// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"net/http"
	"time"

	"go.astrophena.name/feedsync/internal/syncx"
)

// CheckTimeout bounds a single health check.
const CheckTimeout = 2 * time.Second

// HealthHandler reports the state of registered subsystems as JSON. Checks
// can be registered while the handler is already serving.
type HealthHandler struct{ checks *syncx.Protected[checksMap] }

type checksMap = map[string]HealthFunc

// HealthFunc reports the state of a particular subsystem. It must be safe for
// concurrent use.
type HealthFunc func(ctx context.Context) (status string, ok bool)

// NewHealthHandler returns a handler with no checks.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: syncx.Protect(make(checksMap))}
}

// RegisterFunc registers f under name. It panics if name is already taken.
func (h *HealthHandler) RegisterFunc(name string, f HealthFunc) {
	h.checks.Access(func(checks checksMap) {
		if _, dup := checks[name]; dup {
			panic("web: health check " + name + " already registered")
		}
		checks[name] = f
	})
}

// HealthResponse is the body of a health response.
type HealthResponse struct {
	OK     bool                     `json:"ok"`
	Checks map[string]CheckResponse `json:"checks"`
}

// CheckResponse is the result of one check.
type CheckResponse struct {
	Status string `json:"status"`
	OK     bool   `json:"ok"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		RespondJSONError(w, ErrMethodNotAllowed)
		return
	}

	var funcs checksMap
	h.checks.RAccess(func(checks checksMap) {
		funcs = make(checksMap, len(checks))
		for name, f := range checks {
			funcs[name] = f
		}
	})

	hr := &HealthResponse{OK: true, Checks: make(map[string]CheckResponse, len(funcs))}
	for name, f := range funcs {
		ctx, cancel := context.WithTimeout(r.Context(), CheckTimeout)
		status, ok := f(ctx)
		cancel()
		if !ok {
			hr.OK = false
		}
		hr.Checks[name] = CheckResponse{Status: status, OK: ok}
	}

	code := http.StatusOK
	if !hr.OK {
		code = http.StatusInternalServerError
	}
	RespondJSON(w, code, hr)
}
