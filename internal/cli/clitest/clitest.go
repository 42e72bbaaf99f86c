// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest runs table tests against command-line applications.
package clitest

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"go.astrophena.name/feedsync/internal/cli"
)

// Case is a single invocation of an application.
type Case[App cli.App] struct {
	// Args are the command-line arguments.
	Args []string
	// Stdin is the optional standard input.
	Stdin io.Reader
	// Env are the environment variables visible to the application.
	Env map[string]string
	// WantErr is checked with errors.Is.
	WantErr error
	// WantErrType is checked with errors.As.
	WantErrType error
	// WantNothingPrinted requires stdout and stderr to stay empty.
	WantNothingPrinted bool
	// WantInStdout must be a substring of standard output.
	WantInStdout string
	// WantInStderr must be a substring of standard error.
	WantInStderr string
	// CheckFunc performs additional checks after the run.
	CheckFunc func(*testing.T, App)
}

// Run runs cases in parallel, each against a fresh application returned by
// setup.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)
			stdout, stderr, err := Exec(t, app, tc.Args, tc.Env, tc.Stdin)

			if err == nil {
				if tc.WantErr != nil {
					t.Fatalf("must fail with error: %v", tc.WantErr)
				}
				if tc.WantErrType != nil {
					t.Fatalf("must fail with error type %T", tc.WantErrType)
				}
			}

			if err != nil && tc.WantErrType != nil {
				target := reflect.New(reflect.TypeOf(tc.WantErrType))
				if !errors.As(err, target.Interface()) {
					t.Fatalf("want error type %T, got %T", tc.WantErrType, err)
				}
			}

			if err != nil && tc.WantErr != nil && !errors.Is(err, tc.WantErr) {
				t.Fatalf("got error: %v", err)
			}
			if err != nil && tc.WantErr == nil && tc.WantErrType == nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tc.WantNothingPrinted {
				if stdout != "" {
					t.Errorf("stdout must be empty, got: %q", stdout)
				}
				if stderr != "" {
					t.Errorf("stderr must be empty, got: %q", stderr)
				}
			}

			if tc.WantInStdout != "" && !strings.Contains(stdout, tc.WantInStdout) {
				t.Errorf("stdout must contain %q, got: %q", tc.WantInStdout, stdout)
			}
			if tc.WantInStderr != "" && !strings.Contains(stderr, tc.WantInStderr) {
				t.Errorf("stderr must contain %q, got: %q", tc.WantInStderr, stderr)
			}

			if tc.CheckFunc != nil {
				tc.CheckFunc(t, app)
			}
		})
	}
}

// Exec runs app once with args and env and returns what it printed.
func Exec(t *testing.T, app cli.App, args []string, env map[string]string, stdin io.Reader) (stdout, stderr string, err error) {
	t.Helper()
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var outBuf, errBuf bytes.Buffer
	e := &cli.Env{
		Args:   args,
		Getenv: func(name string) string { return env[name] },
		Stdin:  stdin,
		Stdout: &outBuf,
		Stderr: &errBuf,
	}
	err = cli.Run(cli.WithEnv(t.Context(), e), app)
	return outBuf.String(), errBuf.String(), err
}
