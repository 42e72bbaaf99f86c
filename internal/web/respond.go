// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package web contains the small HTTP pieces served by the debug listener.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StatusErr is an error that maps directly to an HTTP status code.
type StatusErr int

func (se StatusErr) Error() string { return strings.ToLower(http.StatusText(int(se))) }

const (
	ErrNotFound            StatusErr = http.StatusNotFound
	ErrMethodNotAllowed    StatusErr = http.StatusMethodNotAllowed
	ErrInternalServerError StatusErr = http.StatusInternalServerError
)

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// RespondJSON writes response as indented JSON with the given status code.
// If response can't be marshaled, a 500 with the marshal error is written
// instead.
func RespondJSON(w http.ResponseWriter, code int, response any) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		b, _ = json.Marshal(errorResponse{
			Status: "error",
			Error:  fmt.Sprintf("JSON marshal error: %v", err),
		})
	} else {
		w.WriteHeader(code)
	}
	w.Write(b)
	w.Write([]byte("\n"))
}

// RespondJSONError writes err as a JSON error response. A [StatusErr] sets the
// status code, any other error is reported as 500.
func RespondJSONError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if se, ok := err.(StatusErr); ok {
		code = int(se)
	}
	RespondJSON(w, code, errorResponse{Status: "error", Error: err.Error()})
}
