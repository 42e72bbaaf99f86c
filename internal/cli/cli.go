// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cli runs command-line applications.
//
// The environment of an application (arguments, standard streams and
// environment variables) travels in a [context.Context] together with the
// [logger.Logger], so applications can be tested without touching the process
// state.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.astrophena.name/feedsync/internal/logger"
	"go.astrophena.name/feedsync/internal/syncx"
	"go.astrophena.name/feedsync/internal/version"
)

// Main runs app in the process environment. It cancels the context on
// SIGINT or SIGTERM and exits with status 1 if app fails.
func Main(app App) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := Run(WithEnv(ctx, OSEnv()), app)
	if err == nil {
		return
	}
	if isPrintableError(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

type unprintableError struct{ err error }

func (e *unprintableError) Error() string { return e.err.Error() }
func (e *unprintableError) Unwrap() error { return e.err }

func isPrintableError(err error) bool {
	if errors.Is(err, flag.ErrHelp) {
		return false
	}
	var ue *unprintableError
	return !errors.As(err, &ue)
}

// ErrExitVersion is returned by [Run] after printing the version.
var ErrExitVersion = &unprintableError{errors.New("version flag exit")}

// ErrInvalidArgs indicates that the command-line arguments are invalid or
// insufficient. Wrap it with a message explaining what is wrong:
//
//	return fmt.Errorf("%w: like expects an item ID", cli.ErrInvalidArgs)
var ErrInvalidArgs = errors.New("invalid arguments")

// App is a command-line application.
type App interface {
	Run(context.Context) error
}

// HasFlags is an App that defines flags.
type HasFlags interface {
	App
	Flags(*flag.FlagSet)
}

// AppFunc is an App without flags.
type AppFunc func(context.Context) error

// Run calls f(ctx).
func (f AppFunc) Run(ctx context.Context) error { return f(ctx) }

// Env is the environment of an application.
type Env struct {
	Args   []string
	Getenv func(string) string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// OSEnv returns the environment of the current process.
func OSEnv() *Env {
	return &Env{
		Args:   os.Args[1:],
		Getenv: os.Getenv,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

type envKey struct{}

// WithEnv returns a copy of ctx carrying env.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// GetEnv returns the Env stored in ctx, or the process environment if there is
// none.
func GetEnv(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	return OSEnv()
}

// Run parses flags from the environment in ctx, installs a logger writing to
// its standard error and runs app. Positional arguments left after parsing
// are available as GetEnv(ctx).Args inside app.
func Run(ctx context.Context, app App) error {
	env := GetEnv(ctx)

	flags := flag.NewFlagSet(version.Name, flag.ContinueOnError)
	if fa, ok := app.(HasFlags); ok {
		fa.Flags(flags)
	}
	var (
		verbose     bool
		showVersion bool
	)
	if flags.Lookup("v") == nil {
		flags.BoolVar(&verbose, "v", false, "Enable debug logging.")
	}
	if flags.Lookup("version") == nil {
		flags.BoolVar(&showVersion, "version", false, "Show version.")
	}
	flags.Usage = usage(flags, env.Stderr)
	flags.SetOutput(env.Stderr)

	if err := flags.Parse(env.Args); err != nil {
		// The flag package has already reported it.
		return &unprintableError{err}
	}
	if showVersion {
		fmt.Fprint(env.Stderr, version.Version())
		return ErrExitVersion
	}

	l := logger.New(env.Stderr)
	if verbose {
		l.Level.Set(slog.LevelDebug)
	}

	parsed := *env
	parsed.Args = flags.Args()
	ctx = WithEnv(logger.Put(ctx, l), &parsed)

	return app.Run(ctx)
}

func usage(flags *flag.FlagSet, stderr io.Writer) func() {
	return func() {
		if docSrc != nil {
			fmt.Fprintf(stderr, "%s\n", doc.Get(parseDocComment))
		}
		fmt.Fprint(stderr, "Available flags:\n\n")
		flags.PrintDefaults()
	}
}

var (
	docSrc []byte
	doc    syncx.Lazy[string]
)

// SetDocComment sets the source of a Go file whose first /* ... */ block
// comment is printed before the flags in the help message. Applications
// usually embed their doc.go:
//
//	//go:embed doc.go
//	var doc []byte
//
//	func init() { cli.SetDocComment(doc) }
func SetDocComment(src []byte) { docSrc = src }

func parseDocComment() string {
	s := bufio.NewScanner(bytes.NewReader(docSrc))
	var (
		out       string
		inComment bool
	)
	for s.Scan() {
		line := s.Text()
		if line == "/*" {
			inComment = true
			continue
		}
		if line == "*/" {
			break
		}
		if inComment {
			out += line + "\n"
		}
	}
	if err := s.Err(); err != nil {
		panic(err)
	}
	return out
}
