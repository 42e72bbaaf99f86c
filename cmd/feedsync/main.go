// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.astrophena.name/feedsync/internal/backend"
	"go.astrophena.name/feedsync/internal/cli"
	"go.astrophena.name/feedsync/internal/config"
	"go.astrophena.name/feedsync/internal/controller"
	"go.astrophena.name/feedsync/internal/events"
	"go.astrophena.name/feedsync/internal/feedcache"
	"go.astrophena.name/feedsync/internal/logger"
	"go.astrophena.name/feedsync/internal/mutate"
	"go.astrophena.name/feedsync/internal/request"
	"go.astrophena.name/feedsync/internal/scroll"
	"go.astrophena.name/feedsync/internal/store"
	"go.astrophena.name/feedsync/internal/syndication"
	"go.astrophena.name/feedsync/internal/version"
	"go.astrophena.name/feedsync/internal/web"
)

func main() { cli.Main(new(app)) }

type app struct {
	// configuration
	configPath   string
	storeDSN     string
	token        string
	json         bool
	debugAddr    string
	natsURL      string
	otlpEndpoint string

	// httpc, if set, is used for backend and syndication requests.
	httpc *http.Client

	// initialized by setup
	cfg         *config.Config
	log         *logger.Logger
	cache       *feedcache.Cache
	bus         *events.Bus
	reg         *prometheus.Registry
	ctrlMetrics *controller.Metrics
	mutMetrics  *mutate.Metrics
	health      *web.HealthHandler
	closers     []func()
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.configPath, "config", "", "Path to the configuration `file`.")
	fs.StringVar(&a.storeDSN, "store", "", "Store `location`: mem:, file:path, postgres://... or redis://....")
	fs.StringVar(&a.token, "token", "", "Backend bearer `token`.")
	fs.BoolVar(&a.json, "json", false, "Print results as JSON.")
	fs.StringVar(&a.debugAddr, "debug-addr", "", "Serve metrics and logs on this `address` while running.")
	fs.StringVar(&a.natsURL, "nats-url", "", "Publish feed events to the NATS server at `url`.")
	fs.StringVar(&a.otlpEndpoint, "otlp-endpoint", "", "Export traces to the OTLP/gRPC collector at `host:port`.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	a.log = logger.Get(ctx)

	a.configPath = cmp.Or(a.configPath, env.Getenv("FEEDSYNC_CONFIG"), "config.star")
	a.token = cmp.Or(a.token, env.Getenv("FEEDSYNC_TOKEN"))
	a.storeDSN = cmp.Or(a.storeDSN, env.Getenv("FEEDSYNC_STORE"))
	if a.storeDSN == "" {
		stateHome := env.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			stateHome = filepath.Join(home, ".local", "state")
		}
		a.storeDSN = "file:" + filepath.Join(stateHome, version.Name, "store.json")
	}

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}
	command, args := env.Args[0], env.Args[1:]

	cmd, ok := commands[command]
	if !ok && command != "feeds" {
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}

	cfg, err := config.Load(a.configPath, a.log.Logger)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a.cfg = cfg

	if command == "feeds" {
		if len(args) != 0 {
			return fmt.Errorf("%w: feeds takes no arguments", cli.ErrInvalidArgs)
		}
		return a.printFeeds(env.Stdout)
	}

	if len(args) < cmd.min+1 || len(args) > cmd.max+1 {
		return fmt.Errorf("%w: usage: %s <feed> %s", cli.ErrInvalidArgs, command, cmd.usage)
	}

	if err := a.setup(ctx); err != nil {
		return err
	}
	defer a.close()

	c, err := a.controller(args[0])
	if err != nil {
		return err
	}
	return cmd.run(a, ctx, c, args[1:])
}

func (a *app) setup(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	a.bus = new(events.Bus)
	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector())
	a.ctrlMetrics = controller.NewMetrics(a.reg)
	a.mutMetrics = mutate.NewMetrics(a.reg)
	a.health = web.NewHealthHandler()

	if a.debugAddr != "" {
		if err := a.serveDebug(env.Stderr); err != nil {
			return err
		}
	}
	if a.otlpEndpoint != "" {
		if err := a.setupTracing(ctx); err != nil {
			a.close()
			return err
		}
	}

	st, err := store.Open(ctx, a.storeDSN, 0)
	if err != nil {
		a.close()
		return fmt.Errorf("opening store: %w", err)
	}
	a.onClose(func() {
		if err := st.Close(); err != nil {
			a.log.Warn("closing store", "error", err)
		}
	})
	ns := feedcache.NamespaceFromToken(a.token)
	a.cache = feedcache.New(st, ns, a.log.Logger)
	a.log.Debug("opened store", "store", a.storeDSN, "namespace", ns)
	a.health.RegisterFunc("store", func(ctx context.Context) (string, bool) {
		if _, err := st.Get(ctx, healthKey); err != nil {
			return err.Error(), false
		}
		return "reachable", true
	})

	if a.natsURL != "" {
		if err := a.forwardEvents(ctx); err != nil {
			a.close()
			return err
		}
	}
	return nil
}

// healthKey is read by the store health check. It is never written.
const healthKey = "feedsync:health"

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

// close releases everything acquired by setup in reverse order.
func (a *app) close() {
	for _, f := range slices.Backward(a.closers) {
		f()
	}
	a.closers = nil
}

func (a *app) serveDebug(stderr io.Writer) error {
	streamer := logger.NewStreamer(1000)
	a.log.Logger = slog.New(slog.NewTextHandler(io.MultiWriter(stderr, streamer), &slog.HandlerOptions{Level: a.log.Level}))

	ln, err := net.Listen("tcp", a.debugAddr)
	if err != nil {
		return fmt.Errorf("debug server: %w", err)
	}
	srv := &http.Server{Handler: a.debugHandler(streamer), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("debug server", "error", err)
		}
	}()
	a.log.Info("debug server listening", "addr", ln.Addr().String())

	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Warn("stopping debug server", "error", err)
		}
	})
	return nil
}

func (a *app) debugHandler(logs http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/logs", logs)
	mux.Handle("/health", a.health)
	return mux
}

func (a *app) setupTracing(ctx context.Context) error {
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(a.otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", version.Name),
			attribute.String("service.version", version.Version().Version),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			a.log.Warn("flushing traces", "error", err)
		}
	})
	return nil
}

func (a *app) forwardEvents(ctx context.Context) error {
	nc, err := nats.Connect(a.natsURL, nats.Name(version.Name))
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	bridge := &events.NATSBridge{Conn: nc, Logger: a.log.Logger}
	done := bridge.Forward(fctx, a.bus)
	a.health.RegisterFunc("nats", func(context.Context) (string, bool) {
		st := nc.Status()
		return st.String(), st == nats.CONNECTED
	})

	a.onClose(func() {
		cancel()
		<-done
		if err := nc.Flush(); err != nil {
			a.log.Warn("flushing NATS connection", "error", err)
		}
		nc.Close()
	})
	return nil
}

func (a *app) controller(key string) (*controller.Controller, error) {
	src, ok := a.cfg.Feed(key)
	if !ok {
		return nil, fmt.Errorf("%w: no such feed %q, see the feeds command", cli.ErrInvalidArgs, key)
	}
	opts := controller.Options{
		Source:          src,
		PageSize:        a.cfg.PageSize,
		Cache:           a.cache,
		Restorer:        scroll.NewRestorer(a.cache, a.cfg.DetailScreens, a.log.Logger),
		Bus:             a.bus,
		Logger:          a.log.Logger,
		Metrics:         a.ctrlMetrics,
		MutationMetrics: a.mutMetrics,
	}
	httpc := a.httpClient()
	if src.Syndication != "" {
		opts.Fetcher = &syndication.Fetcher{HTTPClient: httpc, Logger: a.log.Logger}
	} else {
		if a.cfg.Backend == "" {
			return nil, fmt.Errorf("feed %q has an endpoint, but backend is not set in %s", key, a.configPath)
		}
		client := &backend.Client{BaseURL: a.cfg.Backend, Token: a.token, HTTPClient: httpc}
		opts.Fetcher, opts.API = client, client
	}
	return controller.New(opts)
}

// httpClient returns the client for backend and syndication requests. Requests
// are logged at debug level.
func (a *app) httpClient() *http.Client {
	c := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	if a.httpc != nil {
		clone := *a.httpc
		c = &clone
	}
	c.Transport = request.LogTransport(c.Transport, a.log.Logger)
	return c
}

// detailScreen returns the route used by back when none is given.
func (a *app) detailScreen() string {
	if len(a.cfg.DetailScreens) > 0 {
		return a.cfg.DetailScreens[0]
	}
	return scroll.DefaultDetailScreens[0]
}

func parseCount(s, what string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive number, got %q", cli.ErrInvalidArgs, what, s)
	}
	return n, nil
}
